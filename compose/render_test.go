package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRenderDeterminism(t *testing.T) {
	in := Input{Name: "api", Image: "nginx:1.25", Port: 80, MemoryLimit: "512m"}
	first, err := Render(in)
	require.NoError(t, err)
	second, err := Render(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderYAMLRoundTrip(t *testing.T) {
	manifest, err := Render(Input{Name: "api", Image: "nginx:1.25", Port: 80, CPULimit: "0.5", MemoryLimit: "512m"})
	require.NoError(t, err)

	var doc struct {
		Services map[string]struct {
			Image         string `yaml:"image"`
			Build         string `yaml:"build"`
			ContainerName string `yaml:"container_name"`
			Restart       string `yaml:"restart"`
			EnvFile       []string `yaml:"env_file"`
			Environment   []string `yaml:"environment"`
			Deploy        struct {
				Resources struct {
					Limits map[string]string `yaml:"limits"`
				} `yaml:"resources"`
			} `yaml:"deploy"`
			Networks []string `yaml:"networks"`
		} `yaml:"services"`
		Networks map[string]struct {
			External bool `yaml:"external"`
		} `yaml:"networks"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(manifest), &doc))

	require.Len(t, doc.Services, 1)
	svc, ok := doc.Services["api"]
	require.True(t, ok)
	assert.Equal(t, "infrakt-api", svc.ContainerName)
	assert.Equal(t, "nginx:1.25", svc.Image)
	assert.Empty(t, svc.Build)
	assert.Equal(t, "unless-stopped", svc.Restart)
	assert.Equal(t, []string{".env"}, svc.EnvFile)
	assert.Contains(t, svc.Environment, "API_PORT=80")
	assert.Equal(t, "0.5", svc.Deploy.Resources.Limits["cpus"])
	assert.Equal(t, "512m", svc.Deploy.Resources.Limits["memory"])
	assert.Contains(t, svc.Networks, "infrakt")
	assert.True(t, doc.Networks["infrakt"].External)
}

func TestRenderBuildContext(t *testing.T) {
	manifest, err := Render(Input{Name: "web-app", BuildContext: "./repo", Port: 3000})
	require.NoError(t, err)
	assert.Contains(t, manifest, "build: ./repo")
	assert.NotContains(t, manifest, "image:")
	assert.Contains(t, manifest, "WEB_APP_PORT=3000")
}

func TestRenderRejectsImageAndBuild(t *testing.T) {
	_, err := Render(Input{Name: "api", Image: "nginx", BuildContext: ".", Port: 80})
	assert.Error(t, err)
	_, err = Render(Input{Name: "api", Port: 80})
	assert.Error(t, err)
}

func TestRenderNoLimitsBlockWhenUnset(t *testing.T) {
	manifest, err := Render(Input{Name: "api", Image: "nginx", Port: 80})
	require.NoError(t, err)
	assert.NotContains(t, manifest, "deploy:")
}

func TestRenderDatabase(t *testing.T) {
	manifest, err := RenderDatabase("shopdb", EnginePostgres, 0)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(manifest), &doc))

	assert.Contains(t, manifest, "container_name: infrakt-db-shopdb")
	assert.Contains(t, manifest, "image: postgres:16-alpine")
	assert.Contains(t, manifest, `"127.0.0.1:5432:5432"`)
	assert.Contains(t, manifest, "infrakt-db-shopdb-data:/var/lib/postgresql/data")
	assert.Contains(t, manifest, "POSTGRES_PASSWORD=${POSTGRES_PASSWORD}")
	assert.NotContains(t, manifest, "POSTGRES_PASSWORD=s3cret")
}

func TestParseEngine(t *testing.T) {
	tests := []struct {
		input   string
		want    Engine
		wantErr bool
	}{
		{input: "postgres", want: EnginePostgres},
		{input: "MySQL", want: EngineMySQL},
		{input: "redis", want: EngineRedis},
		{input: "mongo", want: EngineMongo},
		{input: "oracle", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseEngine(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateAppName("my-app.v2"))
	assert.Error(t, ValidateAppName("-leading"))
	assert.Error(t, ValidateAppName("has space"))
	assert.Error(t, ValidateAppName("semi;colon"))

	assert.NoError(t, ValidateBranch("feature/login-2"))
	assert.Error(t, ValidateBranch("bad branch"))

	assert.NoError(t, ValidateCommit("deadbeef12345678"))
	assert.Error(t, ValidateCommit("not-a-hash!"))
	assert.Error(t, ValidateCommit("abc"))

	assert.NoError(t, ValidateDomain("api.example.com"))
	assert.NoError(t, ValidateDomain("*.example.com"))
	assert.Error(t, ValidateDomain("no-dots"))
	assert.Error(t, ValidateDomain("bad_.example.com"))

	assert.NoError(t, ValidatePort(8001))
	assert.Error(t, ValidatePort(0))
	assert.Error(t, ValidatePort(70000))
}

func TestValidateGitURL(t *testing.T) {
	orig := LookupHost
	defer func() { LookupHost = orig }()
	LookupHost = func(host string) ([]string, error) {
		switch host {
		case "github.com":
			return []string{"140.82.121.4"}, nil
		case "internal.corp":
			return []string{"10.0.0.5"}, nil
		}
		return nil, assert.AnError
	}

	assert.NoError(t, ValidateGitURL("https://github.com/org/repo.git"))
	assert.Error(t, ValidateGitURL("http://github.com/org/repo.git"))
	assert.Error(t, ValidateGitURL("https://github.com/org/repo"))
	assert.Error(t, ValidateGitURL("https://localhost/repo.git"))
	assert.Error(t, ValidateGitURL("https://127.0.0.1/repo.git"))
	assert.Error(t, ValidateGitURL("https://host.local/repo.git"))
	assert.Error(t, ValidateGitURL("https://internal.corp/repo.git"))
}

func TestEnvVarName(t *testing.T) {
	assert.Equal(t, "API_PORT", EnvVarName("api"))
	assert.Equal(t, "MY_APP_V2_PORT", EnvVarName("my-app.v2"))
}
