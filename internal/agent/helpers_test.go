package agent

import (
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
)

func awsConfigForTest() aws.Config {
	return aws.Config{Region: "us-east-1"}
}

func optionsForTest(baseURL string) []option.RequestOption {
	return []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	}
}
