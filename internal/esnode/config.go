package esnode

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/esenv/internal/fileutil"
)

// Settings holds elasticsearch.yml settings as flat dotted keys
// (e.g., "http.port", "cluster.name"). Values are rendered with yaml.v3,
// so ints, bools, and strings all serialize naturally.
type Settings map[string]any

// defaultSettings returns the base configuration for a disposable
// single-node cluster. The node binds to loopback only, runs without
// security or ML overhead, and keeps all state under the instance's
// private directories.
//
// action.destructive_requires_name is disabled so wildcard index deletion
// works during release wipes. The disk threshold check is disabled because
// CI machines routinely run close to full, which would otherwise flip the
// cluster read-only mid-test.
func defaultSettings(cfg renderConfig) Settings {
	return Settings{
		"cluster.name":                     cfg.ClusterName,
		"node.name":                        cfg.NodeName,
		"network.host":                     "127.0.0.1",
		"http.port":                        cfg.HTTPPort,
		"transport.port":                   cfg.TransportPort,
		"path.data":                        cfg.DataDir,
		"path.logs":                        cfg.LogsDir,
		"discovery.type":                   "single-node",
		"xpack.security.enabled":           false,
		"xpack.ml.enabled":                 false,
		"action.destructive_requires_name": false,
		"cluster.routing.allocation.disk.threshold_enabled": false,
	}
}

// renderConfig carries the per-instance values interpolated into
// elasticsearch.yml.
type renderConfig struct {
	ClusterName   string
	NodeName      string
	HTTPPort      int
	TransportPort int
	DataDir       string
	LogsDir       string
}

// renderSettings merges caller overrides over the defaults and serializes
// the result as YAML. Overrides win on key collision, so callers can change
// any default except the values required for the node to be reachable
// (those are also overridable; callers who break them get a node that
// never becomes ready).
func renderSettings(cfg renderConfig, overrides Settings) ([]byte, error) {
	merged := defaultSettings(cfg)
	for k, v := range overrides {
		merged[k] = v
	}
	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal elasticsearch.yml: %w", err)
	}
	return out, nil
}

// writeConfigDir populates the instance's private config directory:
// auxiliary files (jvm.options, log4j2.properties, ...) are copied from the
// installation's config directory, then elasticsearch.yml is rendered from
// cfg and overrides. The instance directory is handed to the server via
// ES_PATH_CONF, so the installation's own config is never touched.
func writeConfigDir(configDir, installConfigDir string, cfg renderConfig, overrides Settings) error {
	if err := fileutil.EnsureDir(configDir); err != nil {
		return err
	}

	if err := copyInstallConfig(installConfigDir, configDir); err != nil {
		return err
	}

	// The server refuses to start without a log4j2 config. Installations
	// normally ship one; synthesize a minimal console config when absent.
	log4jPath := filepath.Join(configDir, "log4j2.properties")
	if _, err := os.Stat(log4jPath); os.IsNotExist(err) {
		if err := os.WriteFile(log4jPath, []byte(minimalLog4j2), 0o644); err != nil {
			return fmt.Errorf("write log4j2.properties: %w", err)
		}
	}

	rendered, err := renderSettings(cfg, overrides)
	if err != nil {
		return err
	}
	ymlPath := filepath.Join(configDir, "elasticsearch.yml")
	if err := os.WriteFile(ymlPath, rendered, 0o644); err != nil {
		return fmt.Errorf("write elasticsearch.yml: %w", err)
	}
	return nil
}

// copyInstallConfig copies the regular files from the installation's config
// directory into the instance's config directory, skipping elasticsearch.yml
// (rendered per instance) and any subdirectories. A missing source directory
// is not an error; the fallbacks in writeConfigDir cover the required files.
func copyInstallConfig(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read install config dir %s: %w", src, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == "elasticsearch.yml" {
			continue
		}
		if err := fileutil.CopyFile(
			filepath.Join(src, e.Name()),
			filepath.Join(dst, e.Name()),
			nil,
		); err != nil {
			return fmt.Errorf("copy %s: %w", e.Name(), err)
		}
	}
	return nil
}

const minimalLog4j2 = `status = error

appender.console.type = Console
appender.console.name = console
appender.console.layout.type = PatternLayout
appender.console.layout.pattern = [%d{ISO8601}][%-5p][%-25c{1.}] [%node_name]%marker %m%n

rootLogger.level = info
rootLogger.appenderRef.console.ref = console
`
