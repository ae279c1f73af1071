package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		absolutePathsPolicy(),
		systemDirectoriesPolicy(),
		projectNamePolicy(),
		fileModesPolicy(),
	}
}

// absolutePathsPolicy requires every managed path and source to be absolute.
func absolutePathsPolicy() Policy {
	return Policy{
		Name:        "absolute-paths",
		Description: "Managed paths and sources must be absolute",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"paths"},
		Rego: `package stackprov.policies.paths

import rego.v1

deny contains violation if {
	path := input.resource.path
	not startswith(path, "/")
	violation := {
		"message": sprintf("path '%s' must be absolute", [path]),
		"severity": "error",
		"resource": input.resource.id,
	}
}

deny contains violation if {
	source := input.resource.source
	source != ""
	not startswith(source, "/")
	violation := {
		"message": sprintf("source '%s' must be absolute", [source]),
		"severity": "error",
		"resource": input.resource.id,
	}
}
`,
	}
}

// systemDirectoriesPolicy keeps managed paths out of system directories.
func systemDirectoriesPolicy() Policy {
	return Policy{
		Name:        "system-directories",
		Description: "Managed paths must not be system directories or sit inside one",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"paths", "safety"},
		Rego: `package stackprov.policies.system

import rego.v1

system_dirs := {
	"/etc", "/bin", "/sbin", "/boot", "/proc", "/sys", "/dev", "/lib", "/lib64",
	"/usr/bin", "/usr/sbin", "/usr/lib", "/usr/lib64", "/usr/libexec", "/usr/include", "/usr/share",
}

# Managed as a whole they are system directories; subtrees such as
# /usr/local/app are allowed.
system_parents := {"/usr", "/usr/local"}

within(path, dir) if path == dir

within(path, dir) if startswith(path, concat("", [dir, "/"]))

deny contains violation if {
	input.resource.path == "/"
	violation := {
		"message": "the filesystem root cannot be managed",
		"severity": "error",
		"resource": input.resource.id,
	}
}

deny contains violation if {
	path := input.resource.path
	path in system_parents
	violation := {
		"message": sprintf("path '%s' is a system directory", [path]),
		"severity": "error",
		"resource": input.resource.id,
	}
}

deny contains violation if {
	path := input.resource.path
	some dir in system_dirs
	within(path, dir)
	violation := {
		"message": sprintf("path '%s' is inside system directory %s", [path, dir]),
		"severity": "error",
		"resource": input.resource.id,
	}
}
`,
	}
}

// projectNamePolicy enforces the container engine's project naming rules.
func projectNamePolicy() Policy {
	return Policy{
		Name:        "project-name",
		Description: "Stack project names must be lowercase alphanumerics, hyphens and underscores",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "stack"},
		Rego: `package stackprov.policies.naming

import rego.v1

deny contains violation if {
	input.resource.kind == "stack"
	name := input.resource.project
	not regex.match("^[a-z0-9][a-z0-9_-]*$", name)
	violation := {
		"message": sprintf("project name '%s' must start with a lowercase letter or digit and contain only lowercase letters, digits, '-' and '_'", [name]),
		"severity": "error",
		"resource": input.resource.id,
	}
}

deny contains violation if {
	input.resource.kind == "stack"
	count(input.resource.project) > 63
	violation := {
		"message": "project name must be at most 63 characters",
		"severity": "error",
		"resource": input.resource.id,
	}
}
`,
	}
}

// fileModesPolicy warns about world-writable managed paths.
func fileModesPolicy() Policy {
	return Policy{
		Name:        "file-modes",
		Description: "Warns when a managed directory or file is world-writable",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"permissions"},
		Rego: `package stackprov.policies.modes

import rego.v1

deny contains violation if {
	mode := input.resource.mode
	bits.and(mode, 2) != 0
	violation := {
		"message": sprintf("%s is world-writable (mode %o)", [input.resource.path, mode]),
		"severity": "warning",
		"resource": input.resource.id,
	}
}
`,
	}
}
