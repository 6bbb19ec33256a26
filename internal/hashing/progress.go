package hashing

import "sync/atomic"

// Progress tracks a running load or verify so callers can poll it from
// other goroutines. All methods are safe on a nil receiver.
type Progress struct {
	files_done  atomic.Int64
	files_total atomic.Int64
	bytes_done  atomic.Int64
	bytes_total atomic.Int64
}

func (p *Progress) set_totals(files, size int64) {
	if p == nil {
		return
	}
	p.files_total.Store(files)
	p.bytes_total.Store(size)
}

func (p *Progress) add_file() {
	if p == nil {
		return
	}
	p.files_done.Add(1)
}

func (p *Progress) add_bytes(n int64) {
	if p == nil {
		return
	}
	p.bytes_done.Add(n)
}

// FileFraction is the fraction of files fully processed so far.
func (p *Progress) FileFraction() float64 {
	if p == nil {
		return 0
	}
	total := p.files_total.Load()
	if total == 0 {
		return 0
	}
	return float64(p.files_done.Load()) / float64(total)
}

// SizeFraction is the fraction of content bytes processed so far.
func (p *Progress) SizeFraction() float64 {
	if p == nil {
		return 0
	}
	total := p.bytes_total.Load()
	if total == 0 {
		return 0
	}
	return float64(p.bytes_done.Load()) / float64(total)
}

// Fraction is the conservative overall progress, the lower of the file and
// byte fractions.
func (p *Progress) Fraction() float64 {
	file_frac, size_frac := p.FileFraction(), p.SizeFraction()
	if file_frac < size_frac {
		return file_frac
	}
	return size_frac
}
