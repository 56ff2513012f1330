// Package knowledgebase retrieves technical support passages from a Bedrock
// knowledge base.
package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	defaultNumberOfResults = 3
	minScore               = 0.4
)

type retrieveAPI interface {
	Retrieve(ctx context.Context, in *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

type identityAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client resolves the knowledge base id once and runs hybrid retrievals.
type Client struct {
	api      retrieveAPI
	identity identityAPI
	params   Getter
	region   string

	idMu sync.Mutex
	kbID string
}

// New creates a Client. The knowledge base id is read lazily from the
// parameter /<account>-<region>/kb/knowledge-base-id.
func New(api retrieveAPI, identity identityAPI, params Getter, region string) (*Client, error) {
	if api == nil {
		return nil, errors.New("knowledgebase: api must not be nil")
	}
	if identity == nil {
		return nil, errors.New("knowledgebase: identity api must not be nil")
	}
	if params == nil {
		return nil, errors.New("knowledgebase: param getter must not be nil")
	}
	if strings.TrimSpace(region) == "" {
		return nil, errors.New("knowledgebase: region must not be empty")
	}
	return &Client{api: api, identity: identity, params: params, region: region}, nil
}

// Retrieve returns passages whose relevance score is at least 0.4.
func (c *Client) Retrieve(ctx context.Context, query string) ([]string, error) {
	kbID, err := c.knowledgeBaseID(ctx)
	if err != nil {
		return nil, err
	}

	out, err := c.api.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(kbID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults:    aws.Int32(defaultNumberOfResults),
				OverrideSearchType: types.SearchTypeHybrid,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knowledgebase: retrieve: %w", err)
	}

	var passages []string
	for _, r := range out.RetrievalResults {
		if r.Content == nil {
			continue
		}
		text := aws.ToString(r.Content.Text)
		if text == "" || aws.ToFloat64(r.Score) < minScore {
			continue
		}
		passages = append(passages, text)
	}
	return passages, nil
}

func (c *Client) knowledgeBaseID(ctx context.Context) (string, error) {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	if c.kbID != "" {
		return c.kbID, nil
	}

	ident, err := c.identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("knowledgebase: get caller identity: %w", err)
	}
	name := ParameterName(aws.ToString(ident.Account), c.region)
	id, err := c.params.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("knowledgebase: load knowledge base id: %w", err)
	}
	c.kbID = id
	return id, nil
}

// ParameterName is the parameter holding the knowledge base id for an
// account and region.
func ParameterName(accountID, region string) string {
	return fmt.Sprintf("/%s-%s/kb/knowledge-base-id", accountID, region)
}
