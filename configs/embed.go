// Package configs embeds the configuration templates written by
// `repoindex config init`.
//
// Templates:
//   - user-config.example.yaml: machine-wide settings, written to
//     $XDG_CONFIG_HOME/repoindex/config.yaml
//   - project-config.example.yaml: per-repository settings, written to
//     .repoindex.yaml in the project root
//
// Every value in a template is commented out so that the defaults in
// internal/config keep applying until the user opts in.
package configs

import _ "embed"

// UserConfigTemplate is written by `repoindex config init --user`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `repoindex config init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
