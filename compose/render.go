package compose

import (
	"fmt"
	"strings"

	"infrakt.dev/common"
	"infrakt.dev/config"
)

// Input is the renderer's app descriptor. Exactly one of Image or
// BuildContext must be set.
type Input struct {
	Name         string
	Image        string
	BuildContext string
	Port         int
	CPULimit     string
	MemoryLimit  string
}

// Render produces the compose manifest for an app. It is a pure
// function: identical inputs yield byte-identical output.
func Render(in Input) (string, error) {
	if err := ValidateAppName(in.Name); err != nil {
		return "", err
	}
	if err := ValidatePort(in.Port); err != nil {
		return "", err
	}
	if in.Image == "" && in.BuildContext == "" {
		return "", common.Validationf("app %q needs an image or a build context", in.Name)
	}
	if in.Image != "" && in.BuildContext != "" {
		return "", common.Validationf("app %q cannot set both image and build context", in.Name)
	}

	var b strings.Builder
	b.WriteString("services:\n")
	fmt.Fprintf(&b, "  %s:\n", in.Name)
	if in.Image != "" {
		fmt.Fprintf(&b, "    image: %s\n", in.Image)
	} else {
		fmt.Fprintf(&b, "    build: %s\n", in.BuildContext)
	}
	fmt.Fprintf(&b, "    container_name: %s\n", config.ContainerName(in.Name))
	b.WriteString("    restart: unless-stopped\n")
	b.WriteString("    env_file:\n")
	b.WriteString("      - .env\n")
	b.WriteString("    environment:\n")
	fmt.Fprintf(&b, "      - %s=%d\n", EnvVarName(in.Name), in.Port)
	writeLimits(&b, in.CPULimit, in.MemoryLimit)
	b.WriteString("    networks:\n")
	fmt.Fprintf(&b, "      - %s\n", config.NetworkName)
	writeNetworkBlock(&b)
	return b.String(), nil
}

func writeLimits(b *strings.Builder, cpu, memory string) {
	if cpu == "" && memory == "" {
		return
	}
	b.WriteString("    deploy:\n")
	b.WriteString("      resources:\n")
	b.WriteString("        limits:\n")
	if cpu != "" {
		fmt.Fprintf(b, "          cpus: %q\n", cpu)
	}
	if memory != "" {
		fmt.Fprintf(b, "          memory: %s\n", memory)
	}
}

func writeNetworkBlock(b *strings.Builder) {
	b.WriteString("networks:\n")
	fmt.Fprintf(b, "  %s:\n", config.NetworkName)
	b.WriteString("    external: true\n")
}
