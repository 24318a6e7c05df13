package core

import "strings"

// TargetMatcher determines whether a message target addresses a given identity.
type TargetMatcher interface {
	Match(target, identity string) bool
}

// DefaultMatcher matches a target that equals the identity exactly, or the
// TargetAll wildcard.
//
// Examples:
//
//	"lobby-1"    matches "lobby-1"
//	"lobby-1"    does NOT match "Lobby-1"
//	"TARGET_ALL" matches anything
type DefaultMatcher struct{}

func (DefaultMatcher) Match(target, identity string) bool {
	if target == TargetAll {
		return true
	}
	return target == identity
}

// FoldMatcher is like DefaultMatcher but compares names case-insensitively,
// for games where player names are not case sensitive.
type FoldMatcher struct{}

func (FoldMatcher) Match(target, identity string) bool {
	if target == TargetAll {
		return true
	}
	return strings.EqualFold(target, identity)
}
