package cherry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// CommandPolicy restricts where a command may be used
type CommandPolicy struct {
	// Whitelist exempts the command from any channel restriction
	Whitelist bool `json:"whitelist" yaml:"whitelist"`

	// ChannelID is the only channel the command may be used in
	ChannelID string `json:"channel_id" yaml:"channel_id"`

	// Env names an environment variable holding the channel ID, used
	// when ChannelID is empty
	Env string `json:"env" yaml:"env"`
}

// ChannelPolicy maps command names to their restriction. It's built
// once and never mutated, so it's safe to share between goroutines.
// Commands without an entry are restricted to the default channel.
type ChannelPolicy struct {
	commands         map[string]CommandPolicy
	defaultChannelID string
}

// NewChannelPolicy builds a policy from the given entries. Unlisted
// commands, and entries naming neither a channel nor an env var, are
// restricted to defaultChannelID.
func NewChannelPolicy(entries map[string]CommandPolicy, defaultChannelID string) *ChannelPolicy {
	p := &ChannelPolicy{
		commands:         make(map[string]CommandPolicy, len(entries)),
		defaultChannelID: defaultChannelID,
	}
	for name, entry := range entries {
		if entry.ChannelID == "" && entry.Env != "" {
			entry.ChannelID = os.Getenv(entry.Env)
		}
		if entry.ChannelID == "" && entry.Env == "" {
			entry.ChannelID = defaultChannelID
		}
		p.commands[name] = entry
	}
	return p
}

// LoadChannelPolicy reads the policy file at path. A missing file
// yields an empty policy.
func LoadChannelPolicy(path string, defaultChannelID string) (*ChannelPolicy, error) {
	entries := map[string]CommandPolicy{}
	if path != "" {
		if err := decodeConfigFile(path, &entries); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return NewChannelPolicy(nil, defaultChannelID), nil
			}
			return nil, fmt.Errorf("loading channel policy %s: %w", path, err)
		}
	}
	return NewChannelPolicy(entries, defaultChannelID), nil
}

// Lookup returns the policy entry for a command
func (p *ChannelPolicy) Lookup(command string) (CommandPolicy, bool) {
	if p == nil {
		return CommandPolicy{}, false
	}
	entry, ok := p.commands[command]
	return entry, ok
}

// Check returns a PolicyViolation if command may not be used in
// channelID
func (p *ChannelPolicy) Check(command string, channelID string) error {
	entry, ok := p.Lookup(command)
	if !ok && p != nil {
		entry = CommandPolicy{ChannelID: p.defaultChannelID}
	}
	if entry.Whitelist {
		return nil
	}
	if entry.ChannelID == "" {
		return policyViolation("❌ This command is restricted, but the allowed channel is not configured.")
	}
	if channelID != entry.ChannelID {
		return policyViolation(
			fmt.Sprintf(
				"❌ This command can only be used in the designated channel: <#%s>.",
				entry.ChannelID,
			),
		)
	}
	return nil
}

// Len returns the number of commands with a policy entry
func (p *ChannelPolicy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.commands)
}
