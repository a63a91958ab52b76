package statistics

// Throughput keeps one hour of per-second flash throughput samples
// (bytes per second) in a ring buffer.
type Throughput struct {
	dataSeries [3600]float64
	currentPos int
}

func (tp *Throughput) Add(num float64) {
	tp.currentPos = (tp.currentPos + 1) % 3600
	tp.dataSeries[tp.currentPos] = num
}

func (tp *Throughput) RecentNSum(recentn int) (sum float64) {
	sum = 0
	pos := 0
	for i := 0; i < recentn; i++ {
		pos = (tp.currentPos - i)
		if pos < 0 {
			pos += 3600
		}
		sum += tp.dataSeries[pos]
	}
	return
}

func (tp *Throughput) RecentNAvg(recentn int) float64 {
	if recentn <= 0 {
		return 0
	}
	return tp.RecentNSum(recentn) / float64(recentn)
}
