package parser

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/studiowebux/loadcli/internal/types"
)

// Variable placeholder pattern: {{varName}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// VariableResolver handles variable resolution for requests.
// Resolution order: CLI vars (highest) -> scenario vars -> env vars via
// the explicit {{env.VAR_NAME}} syntax.
type VariableResolver struct {
	scenarioVars map[string]string
	cliVars      map[string]string
	envVars      map[string]string
	unresolved   []string
}

// NewVariableResolver creates a new variable resolver. Any map can be nil.
func NewVariableResolver(scenarioVars, cliVars, envVars map[string]string) *VariableResolver {
	if scenarioVars == nil {
		scenarioVars = make(map[string]string)
	}
	if cliVars == nil {
		cliVars = make(map[string]string)
	}
	if envVars == nil {
		envVars = make(map[string]string)
	}
	return &VariableResolver{
		scenarioVars: scenarioVars,
		cliVars:      cliVars,
		envVars:      envVars,
	}
}

// GetUnresolvedVariables returns the variable names that couldn't be resolved.
func (vr *VariableResolver) GetUnresolvedVariables() []string {
	seen := make(map[string]bool)
	unique := []string{}
	for _, v := range vr.unresolved {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}
	return unique
}

// ExtractVariableNames extracts all unique variable names from a string,
// without the {{ }} brackets.
func ExtractVariableNames(input string) []string {
	matches := varPattern.FindAllStringSubmatch(input, -1)
	seen := make(map[string]bool)
	var names []string
	for _, match := range matches {
		if len(match) > 1 {
			name := strings.TrimSpace(match[1])
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// LoadEnvFile loads variables from a .env file.
func LoadEnvFile(path string) (map[string]string, error) {
	envVars := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		envVars[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading env file: %w", err)
	}

	return envVars, nil
}

// LoadSystemEnv loads all system environment variables.
func LoadSystemEnv() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envVars[parts[0]] = parts[1]
		}
	}
	return envVars
}

// ResolveRequest resolves all variables in a request (URL, headers, body).
// Unresolved placeholders are left in place and reported afterwards via
// GetUnresolvedVariables.
func (vr *VariableResolver) ResolveRequest(req *types.HttpRequest) *types.HttpRequest {
	resolved := &types.HttpRequest{
		Name:    req.Name,
		Method:  req.Method,
		URL:     vr.Resolve(req.URL),
		Headers: make(map[string]string),
		Body:    vr.Resolve(req.Body),
		TLS:     req.TLS,
	}
	for key, value := range req.Headers {
		resolved.Headers[key] = vr.Resolve(value)
	}
	return resolved
}

// Resolve replaces {{varName}} and {{env.VAR_NAME}} placeholders.
func (vr *VariableResolver) Resolve(input string) string {
	return varPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimSpace(match[2 : len(match)-2])

		if strings.HasPrefix(varName, "env.") {
			if value, ok := vr.envVars[varName[4:]]; ok {
				return value
			}
			vr.unresolved = append(vr.unresolved, varName)
			return match
		}

		if value, ok := vr.cliVars[varName]; ok {
			return value
		}
		if value, ok := vr.scenarioVars[varName]; ok {
			return value
		}

		vr.unresolved = append(vr.unresolved, varName)
		return match
	})
}
