package options

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jra3/msync/internal/store"
)

// optionsContainer is the in-memory form of a user.cfg file: known string
// and sync settings plus any unrecognized keys, preserved verbatim so a
// rewrite never drops data the current binary doesn't understand.
type optionsContainer struct {
	strings map[StringKey]string
	sync    map[SyncKey]SyncSetting
	unknown []kv
}

type kv struct {
	key   string
	value string
}

func newOptionsContainer() *optionsContainer {
	return &optionsContainer{
		strings: map[StringKey]string{},
		sync:    DefaultSyncSettings(),
	}
}

func parseOptionLine(c *optionsContainer, line string) error {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("malformed option line %q: missing '='", line)
	}

	switch {
	case isStringKey(key):
		c.strings[StringKey(key)] = value
	case isSyncKey(key):
		setting, err := ParseSyncSetting(value)
		if err != nil {
			return fmt.Errorf("option %s: %w", key, err)
		}
		c.sync[SyncKey(key)] = setting
	default:
		c.unknown = append(c.unknown, kv{key: key, value: value})
	}
	return nil
}

func serializeOptions(c *optionsContainer, w io.Writer) error {
	for _, k := range StringKeys {
		v, ok := c.strings[k]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, v); err != nil {
			return err
		}
	}
	for _, k := range SyncKeys {
		if _, err := fmt.Fprintf(w, "%s=%c\n", k, byte(c.sync[k])); err != nil {
			return err
		}
	}
	for _, u := range c.unknown {
		if _, err := fmt.Fprintf(w, "%s=%s\n", u.key, u.value); err != nil {
			return err
		}
	}
	return nil
}

// UserOptions is a single account's user.cfg, opened for the duration of
// one command.
type UserOptions struct {
	fb *store.FileBacked[optionsContainer]
}

// Open loads path (a user.cfg), or starts an empty one if it doesn't
// exist yet.
func Open(path string) (*UserOptions, error) {
	fb, err := store.Open(path, newOptionsContainer, parseOptionLine, serializeOptions,
		store.Options{SkipBlank: true, SkipComment: true})
	if err != nil {
		return nil, err
	}
	return &UserOptions{fb: fb}, nil
}

// Close rewrites user.cfg.
func (u *UserOptions) Close() error {
	return u.fb.Close()
}

// GetString returns a string option's value and whether it was set.
func (u *UserOptions) GetString(key StringKey) (string, bool) {
	v, ok := u.fb.Parsed.strings[key]
	return v, ok
}

// SetString sets a string option's value.
func (u *UserOptions) SetString(key StringKey, value string) {
	u.fb.Parsed.strings[key] = value
}

// ClearString removes a string option.
func (u *UserOptions) ClearString(key StringKey) {
	delete(u.fb.Parsed.strings, key)
}

// GetSync returns a sync option's current setting.
func (u *UserOptions) GetSync(key SyncKey) SyncSetting {
	return u.fb.Parsed.sync[key]
}

// SetSync sets a sync option's setting.
func (u *UserOptions) SetSync(key SyncKey, setting SyncSetting) {
	u.fb.Parsed.sync[key] = setting
}

// Get looks up any key — string, sync, or unknown — by its raw on-disk
// name. Used by `config <key>` without having to know its category ahead
// of time.
func (u *UserOptions) Get(key string) (string, error) {
	if isStringKey(key) {
		v, ok := u.fb.Parsed.strings[key2StringKey(key)]
		if !ok {
			return "", fmt.Errorf("option %q is not set", key)
		}
		return v, nil
	}
	if isSyncKey(key) {
		return u.fb.Parsed.sync[key2SyncKey(key)].String(), nil
	}
	for _, u2 := range u.fb.Parsed.unknown {
		if u2.key == key {
			return u2.value, nil
		}
	}
	return "", fmt.Errorf("unknown option %q", key)
}

// Set assigns value to key by its raw on-disk name. Sync keys parse value
// via ParseSyncSetting; anything else is stored as a string, known or
// not.
func (u *UserOptions) Set(key, value string) error {
	switch {
	case isStringKey(key):
		u.fb.Parsed.strings[key2StringKey(key)] = value
		return nil
	case isSyncKey(key):
		setting, err := ParseSyncSetting(value)
		if err != nil {
			return fmt.Errorf("option %s: %w", key, err)
		}
		u.fb.Parsed.sync[key2SyncKey(key)] = setting
		return nil
	default:
		for i, kv := range u.fb.Parsed.unknown {
			if kv.key == key {
				u.fb.Parsed.unknown[i].value = value
				return nil
			}
		}
		u.fb.Parsed.unknown = append(u.fb.Parsed.unknown, kv{key: key, value: value})
		return nil
	}
}

// Clear removes key by its raw on-disk name.
func (u *UserOptions) Clear(key string) error {
	switch {
	case isStringKey(key):
		delete(u.fb.Parsed.strings, key2StringKey(key))
		return nil
	case isSyncKey(key):
		u.fb.Parsed.sync[key2SyncKey(key)] = DefaultSyncSettings()[key2SyncKey(key)]
		return nil
	default:
		for i, kv := range u.fb.Parsed.unknown {
			if kv.key == key {
				u.fb.Parsed.unknown = append(u.fb.Parsed.unknown[:i], u.fb.Parsed.unknown[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("unknown option %q", key)
	}
}

func key2StringKey(k string) StringKey { return StringKey(k) }
func key2SyncKey(k string) SyncKey     { return SyncKey(k) }

// ShowAll renders every string option (including unset ones, as
// "[not set]"), every sync option (including defaults), and every
// unknown key, one "key=value" per line, in a stable order — the
// `config showall` contract, carried over from the original's
// mode::showallopt.
func (u *UserOptions) ShowAll() []string {
	var lines []string
	for _, k := range StringKeys {
		v, ok := u.fb.Parsed.strings[k]
		if !ok {
			v = "[not set]"
		}
		lines = append(lines, fmt.Sprintf("%s=%s", k, v))
	}
	for _, k := range SyncKeys {
		lines = append(lines, fmt.Sprintf("%s=%s", k, u.fb.Parsed.sync[k]))
	}
	unknown := append([]kv(nil), u.fb.Parsed.unknown...)
	sort.Slice(unknown, func(i, j int) bool { return unknown[i].key < unknown[j].key })
	for _, kv := range unknown {
		lines = append(lines, fmt.Sprintf("%s=%s", kv.key, kv.value))
	}
	return lines
}
