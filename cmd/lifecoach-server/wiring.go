package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"

	"lifecoach/backend/internal/config"
	"lifecoach/backend/internal/events"
	"lifecoach/backend/internal/integrations/paramstore"
	"lifecoach/backend/internal/notify"
	"lifecoach/backend/internal/podcast"
	"lifecoach/backend/internal/store/postgres"
)

type cloudClients struct {
	dynamo *awsdynamodb.Client
	ssm    *awsssm.Client
}

func newAWSClients(ctx context.Context, cfg config.AWSConfig) (*cloudClients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &cloudClients{
		dynamo: awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		}),
		ssm: awsssm.NewFromConfig(awsCfg),
	}, nil
}

func (c *cloudClients) dynamoCheck(table string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := c.dynamo.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(table)})
		return err
	}
}

// resolveSecrets fills secrets that were left empty in the environment from
// SSM parameters, when a parameter name is configured.
func resolveSecrets(ctx context.Context, clients *cloudClients, cfg *config.Config) error {
	secrets := []paramstore.Secret{
		{Param: cfg.Auth.JWTSecretParam, Dst: &cfg.Auth.JWTSecret},
		{Param: cfg.Spotify.ClientSecretParam, Dst: &cfg.Spotify.ClientSecret},
		{Param: cfg.SMTP.PasswordParam, Dst: &cfg.SMTP.Password},
	}
	needed := false
	for _, s := range secrets {
		if s.Param != "" && *s.Dst == "" {
			needed = true
		}
	}
	if !needed {
		return nil
	}
	ps, err := paramstore.New(clients.ssm)
	if err != nil {
		return err
	}
	return ps.Resolve(ctx, secrets...)
}

// newPublisher fans events out to RabbitMQ and Expo push when each is
// configured. The returned func releases the broker connection.
func newPublisher(cfg config.Config, users *postgres.UserRepo, log *slog.Logger) (events.Publisher, func()) {
	var sinks events.Multi
	closeFn := func() {}

	if cfg.AMQP.URL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Warn("amqp publisher disabled", slog.Any("err", err))
		} else {
			sinks = append(sinks, amqpPub)
			closeFn = func() {
				if err := amqpPub.Close(); err != nil {
					log.Warn("amqp close failed", slog.Any("err", err))
				}
			}
		}
	}
	if cfg.Expo.Enabled {
		sinks = append(sinks, notify.NewPusher(expo.NewPushClient(nil), users, users, log))
	}

	if len(sinks) == 0 {
		return events.Nop{}, closeFn
	}
	return sinks, closeFn
}

// newPodcasts builds the catalog and its rotator. Without Spotify
// credentials the rotator is still returned for manual triggers, which then
// fail with a remote error.
func newPodcasts(ctx context.Context, cfg config.Config, log *slog.Logger) (*podcast.Catalog, *podcast.Rotator, bool) {
	series := cfg.Podcast.Series
	if len(series) == 0 {
		series = podcast.DefaultSeries()
	}
	cat := podcast.NewCatalog(podcast.WithLinks(series))

	var feed podcast.Feed = unconfiguredFeed{}
	ready := false
	if cfg.Spotify.ClientID != "" {
		sf, err := podcast.NewSpotifyFeed(ctx, podcast.SpotifyConfig{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
			Timeout:      cfg.Spotify.Timeout,
		})
		if err != nil {
			log.Warn("spotify feed disabled", slog.Any("err", err))
		} else {
			feed = sf
			ready = true
		}
	}

	rot := podcast.NewRotator(cat, feed, podcast.RotatorConfig{
		Interval: cfg.Podcast.Interval,
		Limit:    cfg.Podcast.Limit,
	}, log)
	return cat, rot, ready
}

var errFeedNotConfigured = errors.New("podcast feed not configured")

type unconfiguredFeed struct{}

func (unconfiguredFeed) LatestEpisodes(context.Context, string, int) ([]podcast.FeedEpisode, int, error) {
	return nil, 0, errFeedNotConfigured
}
