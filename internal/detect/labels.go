package detect

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// CleanAndJerkPhases is the class table of the clean & jerk model, indexed by class id.
var CleanAndJerkPhases = []string{
	"Drive",
	"Drop Under",
	"Drop Weight",
	"First Pull",
	"Front Rack Catch",
	"Front Rack Recovery",
	"Lift Complete",
	"Overhead Catch",
	"Overhead Catch Recovery",
	"Prepare For Dip",
	"Prepare for Lift",
	"Second Pull",
	"Stabilize Weight Overhead",
	"Turn Over",
}

// LabelSet maps class ids to names.
type LabelSet []string

func DefaultLabels() LabelSet {
	out := make(LabelSet, len(CleanAndJerkPhases))
	copy(out, CleanAndJerkPhases)
	return out
}

// LoadLabels reads one class name per line. Blank lines and lines starting with '#' are skipped.
func LoadLabels(path string) (LabelSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels LabelSet
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

func (l LabelSet) Name(id int) string {
	if id >= 0 && id < len(l) {
		return l[id]
	}
	return fmt.Sprintf("class_%d", id)
}
