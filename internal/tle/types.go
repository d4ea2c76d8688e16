package tle

import "time"

// TLEEntry is one satellite of a dataset together with its parsed elements.
type TLEEntry struct {
	NORADID  int
	Name     string
	Epoch    time.Time
	Line1    string
	Line2    string
	Elements *Elements
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// TLEDataset represents a complete set of TLE data from a source.
type TLEDataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []TLEEntry

	byID map[int]int
}

// NewDataset indexes entries by catalog number and computes the epoch range.
// Later duplicates of a catalog number replace earlier ones in the index.
func NewDataset(source string, fetchedAt time.Time, entries []TLEEntry) *TLEDataset {
	ds := &TLEDataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		Satellites: entries,
		byID:       make(map[int]int, len(entries)),
	}
	for i, e := range entries {
		ds.byID[e.NORADID] = i
		if ds.EpochRange.Min.IsZero() || e.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = e.Epoch
		}
		if e.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = e.Epoch
		}
	}
	return ds
}

// Lookup returns the entry for a catalog number.
func (ds *TLEDataset) Lookup(noradID int) (TLEEntry, bool) {
	if ds == nil {
		return TLEEntry{}, false
	}
	i, ok := ds.byID[noradID]
	if !ok {
		return TLEEntry{}, false
	}
	return ds.Satellites[i], true
}
