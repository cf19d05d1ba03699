package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

// defaultIndexPrefix namespaces result indices.
const defaultIndexPrefix = "goharvest"

// ESConfig holds configuration for the Elasticsearch result sink.
type ESConfig struct {
	Addresses []string
	Username  string
	Password  string `json:"-"`
	APIKey    string `json:"-"`
	CloudID   string
	// IndexPrefix namespaces the per-entity-type result indices.
	IndexPrefix string
	// TLSInsecureSkipVerify disables certificate verification. Development
	// environments only.
	TLSInsecureSkipVerify bool
}

// Validate checks if the configuration is valid.
func (c *ESConfig) Validate() error {
	if len(c.Addresses) == 0 && c.CloudID == "" {
		return fmt.Errorf("at least one address or a cloud ID is required")
	}
	return nil
}

// ESSink indexes extraction results into Elasticsearch, one index per entity
// type.
type ESSink struct {
	client *es.Client
	prefix string
	log    logger.Interface
}

// Ensure ESSink implements ResultSink.
var _ ResultSink = (*ESSink)(nil)

// NewESSink creates the sink and verifies connectivity.
func NewESSink(cfg ESConfig, log logger.Interface) (*ESSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := es.NewClient(clientConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("error pinging Elasticsearch: %s", res.String())
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = defaultIndexPrefix
	}

	return &ESSink{client: client, prefix: prefix, log: log}, nil
}

// clientConfig builds the driver configuration, including TLS and
// authentication settings.
func clientConfig(cfg ESConfig) es.Config {
	clientCfg := es.Config{
		Addresses: cfg.Addresses,
	}

	if cfg.TLSInsecureSkipVerify {
		clientCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				//nolint:gosec // configurable for development environments
				InsecureSkipVerify: true,
			},
		}
	}

	if cfg.APIKey != "" {
		clientCfg.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}
	if cfg.CloudID != "" {
		clientCfg.CloudID = cfg.CloudID
	}

	return clientCfg
}

// Persist indexes the result and returns "index/docID" as the reference.
func (s *ESSink) Persist(ctx context.Context, result *domain.RawResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result is nil")
	}

	body, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	index := s.indexName(result.EntityType)
	docID := uuid.New().String()

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return "", fmt.Errorf("failed to index result: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", fmt.Errorf("error indexing result: %s", res.String())
	}

	ref := index + "/" + docID
	s.log.Debug("result indexed",
		"index", index,
		"doc_id", docID,
		"entity_type", result.EntityType,
	)
	return ref, nil
}

var (
	// invalidIndexNameChars matches characters Elasticsearch rejects in index
	// names: space, ", *, ,, /, <, >, ?, \, |
	invalidIndexNameChars = regexp.MustCompile(`[\s"*,/<>?\\|]`)
	// consecutiveUnderscores matches two or more consecutive underscores.
	consecutiveUnderscores = regexp.MustCompile(`_{2,}`)
)

// indexName builds the per-entity-type index name, e.g. "goharvest_company".
func (s *ESSink) indexName(entityType string) string {
	return s.prefix + "_" + sanitizeIndexName(entityType)
}

// sanitizeIndexName normalizes an entity type for use in an index name.
func sanitizeIndexName(name string) string {
	if name == "" {
		return "unknown"
	}

	normalized := strings.ToLower(name)
	normalized = invalidIndexNameChars.ReplaceAllString(normalized, "_")
	normalized = strings.ReplaceAll(normalized, ".", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = consecutiveUnderscores.ReplaceAllString(normalized, "_")
	normalized = strings.Trim(normalized, "_")

	if normalized == "" {
		return "unknown"
	}
	return normalized
}
