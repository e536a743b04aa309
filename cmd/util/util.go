package util

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dHA/rpc/client"
	"github.com/ValentinKolb/dHA/rpc/common"
	"github.com/ValentinKolb/dHA/rpc/serializer"
	"github.com/ValentinKolb/dHA/rpc/transport"
	"github.com/ValentinKolb/dHA/rpc/transport/http"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration (shared by server and client commands)
// --------------------------------------------------------------------------

// InitConfig loads the env files and enables DHA_<FLAG> environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dha")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// ReadConfigFile reads the config file set with --config (or DHA_CONFIG), if any
func ReadConfigFile() error {
	path := viper.GetString("config")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 30, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the dHA server. Multiple endpoints can be specified as a comma-separated list, requests are balanced round-robin"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Idle connections kept per endpoint"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try the request, every attempt uses the next endpoint"))

	key = "cluster-id"
	cmd.PersistentFlags().String(key, "default", WrapString("ID of the cluster to address"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("transport-retries"),
		Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetClientTransport creates the client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetClusterID retrieves the configured cluster ID
func GetClusterID() string {
	return viper.GetString("cluster-id")
}

// --------------------------------------------------------------------------
// Replica definitions
// --------------------------------------------------------------------------

// ParseReplicas parses a replica list in the format id=driver:dsn,... and a weight list
// in the format id=N,... Replicas without a weight get weight 1.
func ParseReplicas(replicas, weights string) ([]common.ReplicaConfig, error) {
	weightOf, err := parseWeights(weights)
	if err != nil {
		return nil, err
	}

	var result []common.ReplicaConfig
	seen := make(map[string]bool)
	for _, entry := range strings.Split(replicas, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, def, ok := strings.Cut(entry, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid replica format: %s (expected ID=DRIVER:DSN)", entry)
		}
		driver, dsn, ok := strings.Cut(def, ":")
		if !ok || driver == "" || dsn == "" {
			return nil, fmt.Errorf("invalid replica format: %s (expected ID=DRIVER:DSN)", entry)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate replica id: %s", id)
		}
		seen[id] = true

		weight := 1
		if w, ok := weightOf[id]; ok {
			weight = w
			delete(weightOf, id)
		}
		result = append(result, common.ReplicaConfig{ID: id, Driver: driver, DSN: dsn, Weight: weight})
	}

	if len(weightOf) > 0 {
		unknown := make([]string, 0, len(weightOf))
		for id := range weightOf {
			unknown = append(unknown, id)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("weight given for unknown replica: %s", strings.Join(unknown, ", "))
	}
	return result, nil
}

func parseWeights(weights string) (map[string]int, error) {
	result := make(map[string]int)
	for _, entry := range strings.Split(weights, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight format: %s (expected ID=N)", entry)
		}
		w, err := strconv.Atoi(value)
		if err != nil || w < 0 {
			return nil, fmt.Errorf("invalid weight for replica %s: %s", id, value)
		}
		result[id] = w
	}
	return result, nil
}

// ParseArgs converts positional statement arguments. NULL becomes nil, everything else stays a string
// and is converted by the database.
func ParseArgs(args []string) []any {
	if len(args) == 0 {
		return nil
	}
	result := make([]any, len(args))
	for i, a := range args {
		if a == "NULL" {
			result[i] = nil
		} else {
			result[i] = a
		}
	}
	return result
}

// NewAdminClient binds the command flags and creates the admin client of the configured cluster
func NewAdminClient(cmd *cobra.Command) (client.IAdmin, error) {
	// Bind command flags to viper
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}

	// Get serializer and transport
	s, err := GetSerializer()
	if err != nil {
		return nil, err
	}
	t, err := GetClientTransport()
	if err != nil {
		return nil, err
	}

	return client.NewRPCAdmin(GetClusterID(), *GetClientConfig(), t, s)
}
