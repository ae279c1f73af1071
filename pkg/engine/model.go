package engine

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Default layout values.
const (
	DefaultConfigName  = "app.config"
	DefaultComposeName = "docker-compose.yml"
	ConfDirName        = "conf"
	DirectoryMode      = 0o755
	FileMode           = 0o644
)

// Inputs is the resolved configuration a run is built from.
type Inputs struct {
	// ProjectRoot is the absolute directory the stack lives in.
	ProjectRoot string

	// ConfigSource is the source of the service configuration file.
	ConfigSource string

	// ComposeSource is the source of the composition file.
	ComposeSource string

	// ConfigName is the file name under conf/. Defaults to DefaultConfigName.
	ConfigName string

	// ProjectName overrides the stack name derived from ProjectRoot.
	ProjectName string

	// StackState is the desired stack state. Defaults to present.
	StackState DesiredStackState
}

var invalidProjectChars = regexp.MustCompile(`[^a-z0-9_-]`)

// ProjectNameFor derives a container engine project name from a directory,
// following the engine's normalization of directory names.
func ProjectNameFor(root string) string {
	name := strings.ToLower(filepath.Base(filepath.Clean(root)))
	name = invalidProjectChars.ReplaceAllString(name, "")
	return strings.TrimLeft(name, "_-")
}

// BuildResources constructs the resource model in declaration order:
// project root, its conf directory, the config file, the composition file and
// the stack. It performs no I/O.
func BuildResources(in Inputs) ([]Resource, error) {
	if in.ProjectRoot == "" {
		return nil, NewConfigurationError("project root is not set", nil).
			WithCode(ErrCodeValidation)
	}
	if !filepath.IsAbs(in.ProjectRoot) {
		return nil, NewConfigurationError(
			fmt.Sprintf("project root %q must be an absolute path", in.ProjectRoot), nil,
		).WithCode(ErrCodeValidation)
	}
	if in.ConfigSource == "" {
		return nil, NewConfigurationError("config source path is not set", nil).
			WithCode(ErrCodeValidation)
	}
	if in.ComposeSource == "" {
		return nil, NewConfigurationError("compose source path is not set", nil).
			WithCode(ErrCodeValidation)
	}

	configName := in.ConfigName
	if configName == "" {
		configName = DefaultConfigName
	}
	if configName != filepath.Base(configName) || configName == "." || configName == ".." {
		return nil, NewConfigurationError(
			fmt.Sprintf("config file name %q must be a plain file name", configName), nil,
		).WithCode(ErrCodeValidation)
	}

	state := in.StackState
	if state == "" {
		state = StackPresent
	}
	if err := state.Validate(); err != nil {
		return nil, NewConfigurationError("invalid stack state", err).WithCode(ErrCodeValidation)
	}

	root := filepath.Clean(in.ProjectRoot)
	project := in.ProjectName
	if project == "" {
		project = ProjectNameFor(root)
	}
	if project == "" {
		return nil, NewConfigurationError(
			fmt.Sprintf("cannot derive a project name from %q", root), nil,
		).WithCode(ErrCodeValidation)
	}

	rootDir := &DirectorySpec{Path: root, Mode: DirectoryMode}
	confDir := &DirectorySpec{
		Path:      filepath.Join(root, ConfDirName),
		Mode:      DirectoryMode,
		DependsOn: []string{rootDir.ID()},
	}
	configFile := &FileSpec{
		Source:      SourceRef(in.ConfigSource),
		Destination: filepath.Join(confDir.Path, configName),
		Mode:        FileMode,
		DependsOn:   []string{confDir.ID()},
	}
	composeFile := &FileSpec{
		Source:      SourceRef(in.ComposeSource),
		Destination: filepath.Join(root, DefaultComposeName),
		Mode:        FileMode,
		DependsOn:   []string{rootDir.ID()},
	}
	stack := &StackSpec{
		ProjectRoot:  root,
		ProjectName:  project,
		ComposeFile:  composeFile.Destination,
		DesiredState: state,
		DependsOn:    []string{configFile.ID(), composeFile.ID()},
	}

	return []Resource{rootDir, confDir, configFile, composeFile, stack}, nil
}

// StackOf returns the stack resource of a model, or nil.
func StackOf(resources []Resource) *StackSpec {
	for _, r := range resources {
		if s, ok := r.(*StackSpec); ok {
			return s
		}
	}
	return nil
}

// BuildStopResources returns the model of a `down` run: the stack alone,
// desired absent and detached from the file resources, which are left as
// they are.
func BuildStopResources(in Inputs) ([]Resource, error) {
	in.StackState = StackAbsent
	resources, err := BuildResources(in)
	if err != nil {
		return nil, err
	}
	stack := *StackOf(resources)
	stack.DependsOn = nil
	return []Resource{&stack}, nil
}
