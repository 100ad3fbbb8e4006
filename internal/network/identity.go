package network

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"net"
	"os"
	"runtime"
	"strings"
	"time"
)

// Memory is a snapshot of free memory, per named heap.
type Memory struct {
	Stack        uint64
	Heap         map[string]uint64
	BiggestBlock map[string]uint64
}

// Identity describes the running device.
type Identity interface {
	FirmwareHash() string
	MACAddress() string
	Memory() Memory
	Vcc() uint32
	Uptime() time.Duration
	Platform() string
}

// Host identifies the machine this process runs on. The firmware hash is the
// MD5 of the executable.
type Host struct {
	started time.Time
	hash    string
	mac     string
}

func NewHost() (*Host, error) {
	h := &Host{started: time.Now()}
	path, err := os.Executable()
	if err != nil {
		return nil, err
	}
	if h.hash, err = fileMD5(path); err != nil {
		return nil, err
	}
	h.mac = firstMAC()
	return h, nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sum := md5.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func firstMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, i := range ifaces {
		if i.Flags&net.FlagLoopback == 0 && len(i.HardwareAddr) > 0 {
			return strings.ToUpper(i.HardwareAddr.String())
		}
	}
	return ""
}

func (h *Host) FirmwareHash() string { return h.hash }
func (h *Host) MACAddress() string   { return h.mac }

func (h *Host) Memory() Memory {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Memory{
		Stack:        ms.StackSys - ms.StackInuse,
		Heap:         map[string]uint64{"HEAP": ms.HeapIdle},
		BiggestBlock: map[string]uint64{"HEAP": ms.HeapIdle - ms.HeapReleased},
	}
}

// Vcc is not measurable on a host.
func (h *Host) Vcc() uint32 { return 0 }

func (h *Host) Uptime() time.Duration { return time.Since(h.started) }

func (h *Host) Platform() string { return strings.ToUpper(runtime.GOOS) }
