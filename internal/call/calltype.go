package call

import (
	"fmt"
	"strings"
)

// CallTypePolicy picks tonight's call shape. The choice is policy, not core
// logic, so the session takes it as an injected collaborator.
type CallTypePolicy interface {
	Choose(user UserContext, mem CallMemory) CallType
}

var milestoneDays = map[int]bool{
	7: true, 14: true, 21: true, 30: true, 50: true,
	60: true, 75: true, 90: true, 100: true,
}

// IsMilestoneDay reports whether a streak length is worth celebrating.
// Every multiple of 100 past the first counts.
func IsMilestoneDay(streak int) bool {
	if streak >= 100 && streak%100 == 0 {
		return true
	}
	return milestoneDays[streak]
}

// defaultCallTypePolicy celebrates milestone days and otherwise rotates
// through the regular shapes, never repeating the previous call's type.
type defaultCallTypePolicy struct{}

func NewDefaultCallTypePolicy() CallTypePolicy { return defaultCallTypePolicy{} }

var rotation = [...]CallType{CallTypeAudit, CallTypeReflection, CallTypeStory, CallTypeChallenge}

func (defaultCallTypePolicy) Choose(user UserContext, mem CallMemory) CallType {
	if IsMilestoneDay(user.CurrentStreak) {
		return CallTypeMilestone
	}
	pick := rotation[user.CurrentStreak%len(rotation)]
	if pick == mem.LastCallType {
		pick = rotation[(user.CurrentStreak+1)%len(rotation)]
	}
	return pick
}

// StaticCallTypePolicy always returns the same type. Used by tests and by
// the outbound-call API when the caller forces a shape.
type StaticCallTypePolicy struct{ Type CallType }

func (p StaticCallTypePolicy) Choose(UserContext, CallMemory) CallType { return p.Type }

// ParseCallType validates an externally supplied call-type string.
func ParseCallType(s string) (CallType, error) {
	switch t := CallType(strings.ToLower(strings.TrimSpace(s))); t {
	case CallTypeAudit, CallTypeReflection, CallTypeStory, CallTypeChallenge, CallTypeMilestone:
		return t, nil
	default:
		return "", fmt.Errorf("call: unknown call type %q", s)
	}
}
