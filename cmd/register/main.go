// Command register creates the Glue catalog entries for the Athena variant:
// the database, the external Parquet table over the S3 dataset, and an MSCK
// REPAIR run so Athena discovers the (year, event_type_part) partitions.
//
// Usage:
//
//	go run ./cmd/register \
//	  -location s3://my-bucket/stormevents \
//	  -output s3://my-bucket/athena-output/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
)

const (
	parquetInputFormat  = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat"
	parquetOutputFormat = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat"
	parquetSerde        = "org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe"
)

// tableColumns is the StormEvents schema as Athena sees it. Partition keys
// are declared separately.
var tableColumns = []gluetypes.Column{
	{Name: aws.String("event_id"), Type: aws.String("string")},
	{Name: aws.String("state"), Type: aws.String("string")},
	{Name: aws.String("event_type"), Type: aws.String("string")},
	{Name: aws.String("episode_id"), Type: aws.String("string")},
	{Name: aws.String("cz_name"), Type: aws.String("string")},
	{Name: aws.String("begin_date_time"), Type: aws.String("timestamp")},
	{Name: aws.String("end_date_time"), Type: aws.String("timestamp")},
	{Name: aws.String("injuries_direct"), Type: aws.String("int")},
	{Name: aws.String("deaths_direct"), Type: aws.String("int")},
	{Name: aws.String("damage_property"), Type: aws.String("string")},
	{Name: aws.String("magnitude"), Type: aws.String("double")},
	{Name: aws.String("latitude"), Type: aws.String("double")},
	{Name: aws.String("longitude"), Type: aws.String("double")},
}

func main() {
	if err := run(); err != nil {
		slog.Error("register failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	database := flag.String("database", "stormevents", "Glue database name")
	table := flag.String("table", "events", "Glue table name")
	location := flag.String("location", "", "s3://bucket/prefix of the Parquet dataset")
	output := flag.String("output", "", "s3:// location for Athena query results")
	workgroup := flag.String("workgroup", "primary", "Athena workgroup")
	region := flag.String("region", "", "AWS region (defaults to the SDK chain)")
	flag.Parse()

	if *location == "" || *output == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -location, -output")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	var opts []func(*awsconfig.LoadOptions) error
	if *region != "" {
		opts = append(opts, awsconfig.WithRegion(*region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return err
	}

	glueClient := glue.NewFromConfig(awsCfg)

	if err := ensureDatabase(ctx, glueClient, *database); err != nil {
		return err
	}
	logger.Info("database ready", "database", *database)

	if err := ensureTable(ctx, glueClient, *database, *table, *location); err != nil {
		return err
	}
	logger.Info("table ready", "table", *table, "location", *location)

	if err := repairPartitions(ctx, athena.NewFromConfig(awsCfg), *database, *table, *workgroup, *output, logger); err != nil {
		return err
	}
	logger.Info("partitions discovered")
	return nil
}

func ensureDatabase(ctx context.Context, client *glue.Client, name string) error {
	_, err := client.CreateDatabase(ctx, &glue.CreateDatabaseInput{
		DatabaseInput: &gluetypes.DatabaseInput{Name: aws.String(name)},
	})
	var exists *gluetypes.AlreadyExistsException
	if errors.As(err, &exists) {
		return nil
	}
	return err
}

func ensureTable(ctx context.Context, client *glue.Client, database, table, location string) error {
	input := &gluetypes.TableInput{
		Name:      aws.String(table),
		TableType: aws.String("EXTERNAL_TABLE"),
		Parameters: map[string]string{
			"classification": "parquet",
		},
		PartitionKeys: []gluetypes.Column{
			{Name: aws.String("year"), Type: aws.String("int")},
			{Name: aws.String("event_type_part"), Type: aws.String("string")},
		},
		StorageDescriptor: &gluetypes.StorageDescriptor{
			Columns:      tableColumns,
			Location:     aws.String(location),
			InputFormat:  aws.String(parquetInputFormat),
			OutputFormat: aws.String(parquetOutputFormat),
			SerdeInfo: &gluetypes.SerDeInfo{
				SerializationLibrary: aws.String(parquetSerde),
			},
		},
	}

	_, err := client.CreateTable(ctx, &glue.CreateTableInput{
		DatabaseName: aws.String(database),
		TableInput:   input,
	})
	var exists *gluetypes.AlreadyExistsException
	if errors.As(err, &exists) {
		_, err = client.UpdateTable(ctx, &glue.UpdateTableInput{
			DatabaseName: aws.String(database),
			TableInput:   input,
		})
	}
	return err
}

// repairPartitions runs MSCK REPAIR TABLE and polls until Athena reports a
// terminal state.
func repairPartitions(ctx context.Context, client *athena.Client, database, table, workgroup, output string, logger *slog.Logger) error {
	started, err := client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(fmt.Sprintf("MSCK REPAIR TABLE `%s`", table)),
		WorkGroup:   aws.String(workgroup),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(output),
		},
	})
	if err != nil {
		return err
	}

	queryID := aws.ToString(started.QueryExecutionId)
	logger.Info("repairing partitions", "query_id", queryID)

	for {
		out, err := client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(queryID),
		})
		if err != nil {
			return err
		}

		switch state := out.QueryExecution.Status.State; state {
		case athenatypes.QueryExecutionStateSucceeded:
			return nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			reason := aws.ToString(out.QueryExecution.Status.StateChangeReason)
			return fmt.Errorf("msck repair %s: %s", state, reason)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
