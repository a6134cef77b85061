package config

import (
	"fmt"
	"regexp"
)

// DefaultProfileName and OverlayProfileName have special dispatch
// semantics: default is the fallback when nothing else matches, and
// overlay is unconditionally appended whenever present.
const (
	DefaultProfileName = "__default__"
	OverlayProfileName = "__overlay__"
)

// CompiledProfile is a ProfileDef with its lookup patterns compiled to
// regexps, ready for repeated context matching.
type CompiledProfile struct {
	Name    string
	Devices map[string]bool // empty = matches every device
	Lookup  []lookupRule
	Effects []string
}

type lookupRule struct {
	key string
	re  *regexp.Regexp
}

// MatchesDevice reports whether the profile applies to a device configured
// under deviceName (an empty Devices list matches every device, property 13).
func (p *CompiledProfile) MatchesDevice(deviceName string) bool {
	if len(p.Devices) == 0 {
		return true
	}
	return p.Devices[deviceName]
}

// MatchesContext reports whether every lookup rule matches the
// corresponding context value. A profile with no lookup rules at all
// matches any context (used by __default__ and __overlay__).
func (p *CompiledProfile) MatchesContext(get func(key string) string) bool {
	for _, rule := range p.Lookup {
		if !rule.re.MatchString(get(rule.key)) {
			return false
		}
	}
	return true
}

// CompileProfiles compiles every profile in doc. A profile whose lookup
// regex fails to compile is dropped (with its error returned alongside,
// for the caller to log) rather than invalidating the whole document.
func CompileProfiles(doc *Document) ([]CompiledProfile, []error) {
	var (
		out  []CompiledProfile
		errs []error
	)
	for _, def := range doc.Profiles {
		cp := CompiledProfile{Name: def.Name, Effects: def.Effects}
		if len(def.Devices) > 0 {
			cp.Devices = make(map[string]bool, len(def.Devices))
			for _, d := range def.Devices {
				cp.Devices[d] = true
			}
		}

		ok := true
		for key, pattern := range def.Lookup {
			re, err := regexp.Compile(pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: profile %q: lookup %q: %w", def.Name, key, err))
				ok = false
				break
			}
			cp.Lookup = append(cp.Lookup, lookupRule{key: key, re: re})
		}
		if !ok {
			continue
		}
		out = append(out, cp)
	}
	return out, errs
}
