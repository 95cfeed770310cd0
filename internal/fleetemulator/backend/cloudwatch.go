package backend

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
)

type putMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchClient publishes each batch with a single PutMetricData call.
type CloudWatchClient struct {
	api putMetricDataAPI
}

// NewCloudWatchClient builds a client from the default AWS credential chain.
func NewCloudWatchClient(ctx *emucontext.Context, config configuration.CloudWatchConfig) (*CloudWatchClient, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, errors.WithMessage(err, "loading aws configuration")
	}
	api := cloudwatch.NewFromConfig(awsConfig, func(o *cloudwatch.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})
	ctx.Log.Infof("Publishing to CloudWatch in %s", config.Region)
	return &CloudWatchClient{api: api}, nil
}

func (c *CloudWatchClient) Submit(ctx *emucontext.Context, namespace string, batch []collector.DataPoint) error {
	if err := checkBatch(batch); err != nil {
		return err
	}
	_, err := c.api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: toMetricData(batch),
	})
	return errors.WithStack(err)
}

func (c *CloudWatchClient) Close() error {
	return nil
}

func toMetricData(batch []collector.DataPoint) []types.MetricDatum {
	data := make([]types.MetricDatum, len(batch))
	for i, point := range batch {
		dimensions := make([]types.Dimension, len(point.Tags))
		for j, tag := range point.Tags {
			dimensions[j] = types.Dimension{
				Name:  aws.String(tag.Key),
				Value: aws.String(tag.Value),
			}
		}
		data[i] = types.MetricDatum{
			MetricName: aws.String(point.MetricName),
			Value:      aws.Float64(point.Value),
			Unit:       toStandardUnit(point.Unit),
			Timestamp:  aws.Time(point.Timestamp.UTC()),
			Dimensions: dimensions,
		}
	}
	return data
}

func toStandardUnit(unit metricmodel.Unit) types.StandardUnit {
	if unit == metricmodel.UnitPercent {
		return types.StandardUnitPercent
	}
	return types.StandardUnitNone
}
