package compose

import (
	"fmt"
	"strings"

	"infrakt.dev/common"
	"infrakt.dev/config"
)

// Engine identifies a supported database engine.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineMySQL    Engine = "mysql"
	EngineRedis    Engine = "redis"
	EngineMongo    Engine = "mongo"
)

// EngineDefaults carries the fixed per-engine settings: image, the
// port the engine listens on, its data path inside the container, and
// the credential variables the manifest forwards from the env file.
type EngineDefaults struct {
	Image    string
	Port     int
	DataPath string
	EnvVars  []string
}

var engineDefaults = map[Engine]EngineDefaults{
	EnginePostgres: {
		Image:    "postgres:16-alpine",
		Port:     5432,
		DataPath: "/var/lib/postgresql/data",
		EnvVars:  []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB"},
	},
	EngineMySQL: {
		Image:    "mysql:8.0",
		Port:     3306,
		DataPath: "/var/lib/mysql",
		EnvVars:  []string{"MYSQL_ROOT_PASSWORD", "MYSQL_DATABASE", "MYSQL_USER", "MYSQL_PASSWORD"},
	},
	EngineRedis: {
		Image:    "redis:7-alpine",
		Port:     6379,
		DataPath: "/data",
		EnvVars:  nil,
	},
	EngineMongo: {
		Image:    "mongo:7",
		Port:     27017,
		DataPath: "/data/db",
		EnvVars:  []string{"MONGO_INITDB_ROOT_USERNAME", "MONGO_INITDB_ROOT_PASSWORD"},
	},
}

// ParseEngine validates an engine name.
func ParseEngine(s string) (Engine, error) {
	e := Engine(strings.ToLower(s))
	if _, ok := engineDefaults[e]; !ok {
		return "", common.Validationf("unsupported database engine %q: supported are postgres, mysql, redis, mongo", s)
	}
	return e, nil
}

// DefaultsFor returns the fixed settings of an engine.
func DefaultsFor(engine Engine) (EngineDefaults, error) {
	d, ok := engineDefaults[engine]
	if !ok {
		return EngineDefaults{}, common.Validationf("unsupported database engine %q", engine)
	}
	return d, nil
}

// DatabaseContainerName is the container name every database app gets,
// and the name the backup engine addresses with docker exec.
func DatabaseContainerName(app string) string {
	return config.ContainerName("db-" + app)
}

// RenderDatabase produces the compose manifest for a managed database.
// Credentials never appear in the manifest text: they are forwarded
// from the project's .env file by interpolation.
func RenderDatabase(name string, engine Engine, port int) (string, error) {
	if err := ValidateAppName(name); err != nil {
		return "", err
	}
	defaults, err := DefaultsFor(engine)
	if err != nil {
		return "", err
	}
	if port == 0 {
		port = defaults.Port
	}
	if err := ValidatePort(port); err != nil {
		return "", err
	}

	volume := fmt.Sprintf("%s-data", DatabaseContainerName(name))

	var b strings.Builder
	b.WriteString("services:\n")
	fmt.Fprintf(&b, "  %s:\n", name)
	fmt.Fprintf(&b, "    image: %s\n", defaults.Image)
	fmt.Fprintf(&b, "    container_name: %s\n", DatabaseContainerName(name))
	b.WriteString("    restart: unless-stopped\n")
	b.WriteString("    env_file:\n")
	b.WriteString("      - .env\n")
	if len(defaults.EnvVars) > 0 {
		b.WriteString("    environment:\n")
		for _, v := range defaults.EnvVars {
			fmt.Fprintf(&b, "      - %s=${%s}\n", v, v)
		}
	}
	b.WriteString("    ports:\n")
	fmt.Fprintf(&b, "      - \"127.0.0.1:%d:%d\"\n", port, defaults.Port)
	b.WriteString("    volumes:\n")
	fmt.Fprintf(&b, "      - %s:%s\n", volume, defaults.DataPath)
	b.WriteString("    networks:\n")
	fmt.Fprintf(&b, "      - %s\n", config.NetworkName)
	b.WriteString("volumes:\n")
	fmt.Fprintf(&b, "  %s:\n", volume)
	writeNetworkBlock(&b)
	return b.String(), nil
}
