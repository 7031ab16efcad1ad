package s3store

import (
	"context"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// PutRequests is the CloudWatch request metric counted against the free tier.
const PutRequests = "PutRequests"

// MetricsAPI is the CloudWatch call used by RequestsUsed.
type MetricsAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// metricsSince is the start of the queried window.
var metricsSince = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// RequestsUsed returns the most recent daily sum of metric for bucket,
// or -1 when CloudWatch has no datapoints.
func RequestsUsed(ctx context.Context, cw MetricsAPI, bucket, metric string) (float64, error) {
	out, err := cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/S3"),
		MetricName: aws.String(metric),
		Dimensions: []types.Dimension{
			{Name: aws.String("BucketName"), Value: aws.String(bucket)},
		},
		StartTime:  aws.Time(metricsSince),
		EndTime:    aws.Time(time.Now()),
		Period:     aws.Int32(86400),
		Statistics: []types.Statistic{types.StatisticSum},
	})
	if err != nil {
		return -1, classify(err, false)
	}
	if len(out.Datapoints) == 0 {
		return -1, nil
	}
	latest := slices.MaxFunc(out.Datapoints, func(a, b types.Datapoint) int {
		return aws.ToTime(a.Timestamp).Compare(aws.ToTime(b.Timestamp))
	})
	return aws.ToFloat64(latest.Sum), nil
}
