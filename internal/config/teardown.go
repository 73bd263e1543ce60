package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Плейсхолдеры, подставляемые в шаблоны команд уничтожения
const (
	PlaceholderID   = "{id}"
	PlaceholderName = "{name}"
	PlaceholderKind = "{kind}"
)

// TeardownConfig содержит шаблоны удаленных команд уничтожения
type TeardownConfig struct {
	// Host выполняется на хосте при его уничтожении
	Host CommandTemplate `toml:"host"`
	// Resources задает команду для каждого вида ресурса; ключ "default" используется
	// для видов без собственной команды
	Resources map[string]CommandTemplate `toml:"resources"`
}

// CommandTemplate описывает одну удаленную команду
type CommandTemplate struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// DefaultTeardown возвращает команды уничтожения по умолчанию
func DefaultTeardown() TeardownConfig {
	return TeardownConfig{
		Host: CommandTemplate{
			Command: "sudo",
			Args:    []string{"/usr/local/sbin/decommission-host", "--host-id", PlaceholderID},
		},
		Resources: map[string]CommandTemplate{
			"default": {
				Command: "sudo",
				Args:    []string{"/usr/local/sbin/destroy-workload", "--kind", PlaceholderKind, "--id", PlaceholderID},
			},
		},
	}
}

// ForResource возвращает шаблон команды для вида ресурса
func (c TeardownConfig) ForResource(kind string) (CommandTemplate, bool) {
	if tpl, ok := c.Resources[kind]; ok {
		return tpl, true
	}
	tpl, ok := c.Resources["default"]
	return tpl, ok
}

// Render подставляет значения в шаблон и возвращает команду и аргументы
func (t CommandTemplate) Render(id, name, kind string) (string, []string) {
	r := strings.NewReplacer(PlaceholderID, id, PlaceholderName, name, PlaceholderKind, kind)
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = r.Replace(a)
	}
	return r.Replace(t.Command), args
}

// LoadTeardown читает шаблоны из TOML файла; пустой путь означает значения по умолчанию
func LoadTeardown(path string) (TeardownConfig, error) {
	cfg := DefaultTeardown()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return TeardownConfig{}, fmt.Errorf("teardown config load failed (%s): %w", path, err)
	}

	var fileCfg TeardownConfig
	if err := toml.Unmarshal(data, &fileCfg); err != nil {
		return TeardownConfig{}, fmt.Errorf("teardown config parse failed (%s): %w", path, err)
	}

	if fileCfg.Host.Command != "" {
		cfg.Host = fileCfg.Host
	}
	for kind, tpl := range fileCfg.Resources {
		if tpl.Command == "" {
			return TeardownConfig{}, fmt.Errorf("teardown config invalid (%s): resources.%s has no command", path, kind)
		}
		cfg.Resources[kind] = tpl
	}
	return cfg, nil
}
