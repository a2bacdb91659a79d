// Package sysinfo queries host resources for the processing engine.
package sysinfo

import (
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemMemory reports the memory currently available to the process, as
// seen by the operating system.
type SystemMemory struct{}

// AvailableBytes returns the available physical memory.
func (SystemMemory) AvailableBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
