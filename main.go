package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/GoFlashTools/goflash/artifact"
	"github.com/GoFlashTools/goflash/board"
	"github.com/GoFlashTools/goflash/bootloader"
	"github.com/GoFlashTools/goflash/console"
	"github.com/GoFlashTools/goflash/farm"
	"github.com/GoFlashTools/goflash/image"
	"github.com/GoFlashTools/goflash/probe"
)

const version = "0.2.1"

// program stays a stub until per-board serial programming recipes are
// filled in; the error text tells the operator where to look.
const programDiagnostic = "program is not configured for this board; " +
	"flash over the debug probe instead, or add a bootloader recipe to " +
	"goflash.json (see doc/Programming.md)"

var mainCmd = &cobra.Command{
	Use:   "goflash",
	Short: "Kernel image loader for embedded boards",
	Long:  `goflash loads built kernel images onto boards through a debug probe or serial bootloader`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

var flashCmd = &cobra.Command{
	Use:          "flash",
	Short:        "Write, verify and reset using the release image",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		return runFlash(artifact.ProfileRelease, watch)
	},
}

var flashDebugCmd = &cobra.Command{
	Use:          "flash-debug",
	Short:        "Write, verify and reset using the debug image",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		return runFlash(artifact.ProfileDebug, watch)
	},
}

var installCmd = &cobra.Command{
	Use:          "install",
	Short:        "Alias for flash (release image)",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlash(artifact.ProfileRelease, false)
	},
}

var programCmd = &cobra.Command{
	Use:          "program",
	Short:        "Program over the serial bootloader (not configured)",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return errors.New(programDiagnostic)
	},
}

var listenCmd = &cobra.Command{
	Use:          "listen",
	Short:        "Attach a terminal to the board console",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := selectedPort()
		if err != nil {
			return err
		}
		logger := farm.InitLogger(viper.GetString("debug"))
		return console.Attach(port, viper.GetUint("baudrate"), logger)
	},
}

var listCmd = &cobra.Command{
	Use:          "list",
	Short:        "List candidate serial ports",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports := console.CandidatePorts()
		if len(ports) == 0 {
			return errors.New("no serial ports found")
		}
		identify, _ := cmd.Flags().GetBool("identify")
		for _, port := range ports {
			if !identify {
				fmt.Println(port)
				continue
			}
			banner, err := console.Identify(port, viper.GetUint("baudrate"))
			switch {
			case err != nil:
				fmt.Printf("%s\t(%v)\n", port, err)
			case banner == "":
				fmt.Printf("%s\t(silent)\n", port)
			default:
				fmt.Printf("%s\t%s\n", port, banner)
			}
		}
		return nil
	},
}

var bootloadCmd = &cobra.Command{
	Use:          "bootload <image.hex>",
	Short:        "Program an Intel HEX image over the serial bootloader",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := board.Lookup(viper.GetString("board"))
		if err != nil {
			return err
		}

		img, err := image.LoadHexFile(args[0])
		if err != nil {
			return err
		}

		port, err := selectedPort()
		if err != nil {
			return err
		}

		logger := farm.InitLogger(viper.GetString("debug"))
		bl, err := bootloader.Open(port, b.BaudRate, logger)
		if err != nil {
			return err
		}
		defer bl.Close()

		log.Printf("Programming %d bytes over %s", img.TotalSize(), port)
		return bl.Program(img, b.FlashBase)
	},
}

var mainFarm = &farm.Farm{}

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the flashing farm service",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		boards, err := board.Catalog()
		if err != nil {
			return err
		}

		mainFarm.Boards = boards
		mainFarm.OpenOCD = viper.GetString("openocd")
		mainFarm.BuildRoot = viper.GetString("build-root")
		mainFarm.Listen = viper.GetString("serve-listen")
		mainFarm.LogLevel = viper.GetString("debug")
		mainFarm.UseRig = viper.GetBool("rig")
		mainFarm.Setup()

		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			fmt.Println("Config file changed:", e.Name)
			boards, err := board.Catalog()
			if err != nil {
				log.Print("Bad config, keeping previous boards: ", err)
				return
			}
			mainFarm.Reload(boards, viper.GetString("debug"))
		})

		return mainFarm.Serve()
	},
}

func init() {
	viper.SetDefault("board", "stm32f4discovery")
	viper.SetDefault("build-root", "target")
	viper.SetDefault("openocd", "openocd")
	viper.SetDefault("port", "")
	viper.SetDefault("baudrate", "115200")
	viper.SetDefault("debug", "info")
	viper.SetDefault("serve-listen", "0.0.0.0:8471")
	viper.SetDefault("rig", false)
	viper.SetDefault("slot", []int{})
	viper.SetDefault("uartio", []int{5, 4, 3, 2})
	viper.SetDefault("jtagio", []int{26, 25, 24, 6})
	viper.SetDefault("resetio", []int{13, 12, 19, 18})

	bindConfigFlags(mainCmd.PersistentFlags())

	flashCmd.Flags().Bool("watch", false, "re-flash whenever the image is rebuilt")
	flashDebugCmd.Flags().Bool("watch", false, "re-flash whenever the image is rebuilt")
	listCmd.Flags().Bool("identify", false, "open each port and report the kernel banner")

	mainCmd.AddCommand(versionCmd, flashCmd, flashDebugCmd, installCmd,
		programCmd, listenCmd, listCmd, bootloadCmd, serveCmd)

	cobra.OnInitialize(initConfig)
}

// bindConfigFlags declares the flags every subcommand shares and binds
// them so config file values and flags resolve through the same keys.
func bindConfigFlags(flags *pflag.FlagSet) {
	flags.String("cfg", "goflash.json", "config file path")
	flags.String("board", "stm32f4discovery", "target board name")
	flags.String("port", "", "serial port (auto-discovered when empty)")
	flags.String("build-root", "target", "build output root")
	flags.String("openocd", "openocd", "programmer binary")
	flags.String("debug", "info", "log level (debug, info, error)")
	viper.BindPFlags(flags)
}

// initConfig mirrors the usual viper search: an explicit --cfg wins,
// otherwise goflash.json is looked up in the working directory and
// under /etc/goflash.
func initConfig() {
	fullcfgname := viper.GetString("cfg")
	cfgname := strings.TrimSuffix(filepath.Base(fullcfgname), filepath.Ext(fullcfgname))
	if fullcfgname != "goflash.json" {
		viper.SetConfigFile(fullcfgname)
	} else {
		viper.SetConfigName(cfgname)
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/goflash")
	}

	err := viper.ReadInConfig()
	if err != nil {
		log.Print("No config file found. Using built-in defaults.")
	}
}

func main() {
	if err := mainCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// selectedPort returns the configured serial port, falling back to the
// first discovered candidate.
func selectedPort() (string, error) {
	if port := viper.GetString("port"); port != "" {
		return port, nil
	}
	ports := console.CandidatePorts()
	if len(ports) == 0 {
		return "", errors.New("no serial ports found; pass --port")
	}
	fmt.Println("Port not specified, using: " + ports[0])
	return ports[0], nil
}

func runFlash(profile string, watch bool) error {
	b, err := board.Lookup(viper.GetString("board"))
	if err != nil {
		return err
	}

	art := artifact.Artifact{
		BuildRoot:    viper.GetString("build-root"),
		TargetTriple: b.TargetTriple,
		Profile:      profile,
		Name:         b.ArtifactName(),
	}

	logger := farm.InitLogger(viper.GetString("debug"))
	p := probe.New(viper.GetString("openocd"), b.ProbeConfig, logger)

	if err := flashImage(art, p); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	quit := make(chan struct{})
	log.Print("Watching ", art.Path())
	err = artifact.Watch(art.Path(), quit, func() {
		if err := flashImage(art, p); err != nil {
			log.Print(err)
		}
	})
	if err != nil {
		return err
	}

	select {} // flash on every rebuild until interrupted
}

// flashImage enforces the build dependency: the programmer is never
// invoked unless the image exists.
func flashImage(art artifact.Artifact, p *probe.Probe) error {
	path, err := art.Resolve()
	if err != nil {
		return err
	}
	return p.Flash(path)
}
