package dataset

import "sort"

// Dataset is an ordered collection of runs.
type Dataset struct {
	Runs []Run
}

// Scenarios returns the sorted distinct scenario labels.
func (d *Dataset) Scenarios() []string {
	seen := make(map[string]struct{}, len(d.Runs))
	var out []string
	for _, r := range d.Runs {
		if _, ok := seen[r.Scenario]; !ok {
			seen[r.Scenario] = struct{}{}
			out = append(out, r.Scenario)
		}
	}
	sort.Strings(out)
	return out
}

// RunNames returns the sorted run names.
func (d *Dataset) RunNames() []string {
	out := make([]string, 0, len(d.Runs))
	for _, r := range d.Runs {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

// FilterMinSamples drops runs with fewer than n samples.
func (d *Dataset) FilterMinSamples(n int) Dataset {
	var out Dataset
	for _, r := range d.Runs {
		if len(r.Samples) >= n {
			out.Runs = append(out.Runs, r)
		}
	}
	return out
}

// FilterRuns keeps only runs whose name is in keep.
func (d *Dataset) FilterRuns(keep map[string]bool) Dataset {
	var out Dataset
	for _, r := range d.Runs {
		if keep[r.Name] {
			out.Runs = append(out.Runs, r)
		}
	}
	return out
}

// SplitScenario partitions runs into train (every other scenario) and test
// (only the named scenario). The held-out scenario never appears in train.
func (d *Dataset) SplitScenario(scenario string) (train, test Dataset) {
	for _, r := range d.Runs {
		if r.Scenario == scenario {
			test.Runs = append(test.Runs, r)
		} else {
			train.Runs = append(train.Runs, r)
		}
	}
	return train, test
}

// SplitRun partitions runs into train (every other run) and test (only the
// named run).
func (d *Dataset) SplitRun(name string) (train, test Dataset) {
	for _, r := range d.Runs {
		if r.Name == name {
			test.Runs = append(test.Runs, r)
		} else {
			train.Runs = append(train.Runs, r)
		}
	}
	return train, test
}

// NumSamples counts samples across all runs.
func (d *Dataset) NumSamples() int {
	var n int
	for _, r := range d.Runs {
		n += len(r.Samples)
	}
	return n
}
