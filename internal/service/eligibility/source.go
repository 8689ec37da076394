package eligibility

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"gopkg.in/yaml.v3"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// Source loads the full city registry.
type Source interface {
	Load(ctx context.Context) ([]domain.City, error)
}

// registryFile is the on-disk layout of the YAML registry.
type registryFile struct {
	Cities []domain.City `yaml:"cities"`
}

// FileSource reads the registry from a YAML file on every Load.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) ([]domain.City, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read city registry: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a registry document.
func ParseYAML(data []byte) ([]domain.City, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse city registry: %w", err)
	}
	for i, c := range f.Cities {
		if c.ID == "" {
			return nil, fmt.Errorf("parse city registry: entry %d has no id", i)
		}
	}
	return f.Cities, nil
}

// StaticSource serves a fixed registry.
type StaticSource []domain.City

func (s StaticSource) Load(_ context.Context) ([]domain.City, error) {
	return append([]domain.City(nil), s...), nil
}

// DynamoScanAPI is the subset of the DynamoDB client the source needs.
type DynamoScanAPI interface {
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoSource scans a DynamoDB table whose items carry the City attributes.
type DynamoSource struct {
	client DynamoScanAPI
	table  string
}

// NewDynamoSource creates a DynamoDB-backed registry source.
func NewDynamoSource(client DynamoScanAPI, table string) *DynamoSource {
	return &DynamoSource{client: client, table: table}
}

func (s *DynamoSource) Load(ctx context.Context) ([]domain.City, error) {
	var (
		out   []domain.City
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning city table: %w", err)
		}
		var cities []domain.City
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &cities); err != nil {
			return nil, fmt.Errorf("decoding city items: %w", err)
		}
		out = append(out, cities...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}
