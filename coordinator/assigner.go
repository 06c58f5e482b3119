package coordinator

import (
	"fmt"

	"github.com/getpup/pupdeploy"
)

// Assign pairs each host with the value at the same position.
// Hosts and values come from separate configuration lists, so both must have
// the same length.
func Assign(hosts []pupdeploy.Host, values []string) (map[pupdeploy.Host]string, error) {
	if len(hosts) != len(values) {
		return nil, fmt.Errorf("%w: %d values for %d hosts", pupdeploy.ErrConfiguration, len(values), len(hosts))
	}

	assigned := make(map[pupdeploy.Host]string, len(hosts))
	for i, host := range hosts {
		if _, ok := assigned[host]; ok {
			return nil, fmt.Errorf("%w: host %s listed twice", pupdeploy.ErrConfiguration, host)
		}
		assigned[host] = values[i]
	}

	return assigned, nil
}
