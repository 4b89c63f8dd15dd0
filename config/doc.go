// Package config loads daemon settings and the deployment manifest.
//
// Settings come from OFFLINEKIT_* environment variables, overridden by
// command-line flags. Secret settings accept ${VAR} expansion and
// secretref:<provider>:<ref> references. The manifest is a TOML file that
// names the generation to deploy, the URLs to precache and the paths to
// deny; a Watcher reports every valid rewrite of it.
package config
