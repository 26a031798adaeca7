// Package utils provides filesystem, identity and logging helpers shared by
// the PartVault daemon and CLI.
package utils

import (
	"crypto/sha256"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/denisbrodbeck/machineid"
)

// HWID is the stable identifier of this machine. Checkout locks are
// attributed to (user, HWID), so it must not change across restarts.
var HWID = MachineID()

var (
	hwidOnce   sync.Once
	hwidCached string
)

// MachineID returns a hashed machine identifier. Falls back to the board
// serial and finally the hostname when the platform id is unavailable.
func MachineID() string {
	hwidOnce.Do(func() {
		if id, err := machineid.ProtectedID("partvault"); err == nil && id != "" {
			hwidCached = id
			return
		}

		if serial := boardSerial(); serial != "" {
			sum := sha256.Sum256([]byte("partvault." + serial))
			hwidCached = fmt.Sprintf("%x", sum)
			return
		}

		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "unknown"
		}
		sum := sha256.Sum256([]byte("partvault.host." + host))
		hwidCached = fmt.Sprintf("%x", sum)
	})
	return hwidCached
}

// MachineName returns the human-readable name shown next to a lock holder.
func MachineName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

func boardSerial() string {
	if runtime.GOOS != "linux" {
		return ""
	}
	content, err := os.ReadFile("/sys/class/dmi/id/board_serial")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}
