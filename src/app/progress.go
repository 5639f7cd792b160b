package app

// Upload progress checkpoints. They only feed UI feedback; a failure at any
// point discards the attempt.
const (
	ProgressStarted       = 10
	ProgressAuthenticated = 25
	ProgressKeyDerived    = 40
	ProgressRead          = 60
	ProgressUploaded      = 80
	ProgressRecorded      = 100
)

// ProgressFunc receives checkpoints in increasing order.
type ProgressFunc func(percent int)

// monotonic drops any checkpoint that does not move forward.
func monotonic(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(int) {}
	}
	last := 0
	return func(p int) {
		if p <= last {
			return
		}
		last = p
		fn(p)
	}
}
