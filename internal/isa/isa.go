package isa

import (
	"fmt"
	"strings"
)

// InstructionSet identifies the target architecture of a code buffer.
type InstructionSet uint8

const (
	None InstructionSet = iota
	Arm
	Arm64
	Thumb2
	X86
	X86_64
	Mips
	Mips64
)

var names = [...]string{
	None:   "none",
	Arm:    "arm",
	Arm64:  "arm64",
	Thumb2: "thumb2",
	X86:    "x86",
	X86_64: "x86_64",
	Mips:   "mips",
	Mips64: "mips64",
}

// String returns the canonical lower-case name.
func (s InstructionSet) String() string {
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("isa(%d)", uint8(s))
}

// Parse converts a name (case-insensitive, a few common aliases allowed) to an InstructionSet.
func Parse(name string) (InstructionSet, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "arm":
		return Arm, nil
	case "arm64", "aarch64":
		return Arm64, nil
	case "thumb2", "thumb":
		return Thumb2, nil
	case "x86", "386", "i386":
		return X86, nil
	case "x86_64", "x86-64", "amd64":
		return X86_64, nil
	case "mips":
		return Mips, nil
	case "mips64":
		return Mips64, nil
	default:
		return None, fmt.Errorf("unknown instruction set: %q (expected: arm|arm64|thumb2|x86|x86_64|mips|mips64)", name)
	}
}

// All lists every supported instruction set in declaration order.
func All() []InstructionSet {
	return []InstructionSet{Arm, Arm64, Thumb2, X86, X86_64, Mips, Mips64}
}
