package config

const (
	DefaultIndex     = "default_index"
	DefaultNamespace = "default_namespace"
	DefaultDirectory = "./documents"
)

// Resolution is a setting that is either decided or still needs the user.
// A resolved empty Value is meaningful: the empty namespace is valid.
type Resolution struct {
	Value    string
	Resolved bool
}

func resolved(v string) Resolution {
	return Resolution{Value: v, Resolved: true}
}

// ResolveIndex prefers the provided name, then the default in
// non-interactive mode. Otherwise the caller has to ask.
func ResolveIndex(provided string, nonInteractive bool) Resolution {
	if provided != "" {
		return resolved(provided)
	}
	if nonInteractive {
		return resolved(DefaultIndex)
	}
	return Resolution{}
}

// ResolveNamespace treats an explicitly provided empty string as the empty
// namespace. nil means the flag was not given.
func ResolveNamespace(provided *string, nonInteractive bool) Resolution {
	if provided != nil {
		return resolved(*provided)
	}
	if nonInteractive {
		return resolved(DefaultNamespace)
	}
	return Resolution{}
}

func ResolveDirectory(provided string, nonInteractive bool) Resolution {
	if provided != "" {
		return resolved(provided)
	}
	if nonInteractive {
		return resolved(DefaultDirectory)
	}
	return Resolution{}
}
