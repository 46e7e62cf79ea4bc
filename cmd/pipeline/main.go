package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tweetbridge/tweetbridge/ingestion"
	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/publication"
	"github.com/tweetbridge/tweetbridge/ratelimit"
	"github.com/tweetbridge/tweetbridge/store"
	"github.com/tweetbridge/tweetbridge/translation"
	"github.com/tweetbridge/tweetbridge/utils"
	"github.com/tweetbridge/tweetbridge/utils/dotenv"
	Flag "github.com/tweetbridge/tweetbridge/utils/flag"
	. "github.com/tweetbridge/tweetbridge/utils/log"
)

const (
	// The ingest tick only polls for due configs, the actual per-owner
	// cadence comes from MonitoringConfig.CheckInterval.
	ingestSchedule  = "@every 1m"
	publishSchedule = "@every 2m"

	// Protective delay between consecutive owners within one run, the
	// timeline provider dislikes rapid-fire calls.
	interOwnerDelay = 2 * time.Second
)

type pipeline struct {
	configs   store.ConfigStore
	fetcher   *ingestion.Fetcher
	stage     *translation.Stage
	scheduler *publication.Scheduler

	// Last ingestion attempt per owner. Only touched from the cron goroutine,
	// SkipIfStillRunning guarantees runs never overlap.
	lastIngest map[string]time.Time
}

// ingestDue reports whether the owner's check interval has elapsed since the
// last ingestion attempt.
func (p *pipeline) ingestDue(config *model.MonitoringConfig, now time.Time) bool {
	last, ok := p.lastIngest[config.OwnerId]
	if !ok {
		return true
	}
	return now.Sub(last) >= config.CheckInterval()
}

// ingestAndTranslate runs ingestion then translation for every active
// configuration, sequentially. A failing owner never blocks the rest.
func (p *pipeline) ingestAndTranslate() {
	ctx := context.Background()
	configs, err := p.configs.ListActiveConfigs(ctx)
	if err != nil {
		Log.Error("fail to list active configs : ", err)
		return
	}

	now := time.Now()
	fetched := 0
	for _, config := range configs {
		if !p.ingestDue(config, now) {
			continue
		}
		if fetched > 0 {
			time.Sleep(interOwnerDelay)
		}
		fetched++
		p.lastIngest[config.OwnerId] = time.Now()

		result, err := p.fetcher.FetchNewPosts(ctx, config.OwnerId)
		if err != nil {
			Log.Errorf("ingest failed for owner %s: %s", config.OwnerId, err)
			continue
		}
		if result.RateLimited {
			Log.Infof("owner %s timeline rate limited, retrying in %s", config.OwnerId, result.Wait)
			continue
		}
		Log.Infof("owner %s: fetched %d, inserted %d", config.OwnerId, result.FetchedCount, result.InsertedCount)

		if _, err := p.stage.TranslatePending(ctx, config.OwnerId); err != nil {
			Log.Errorf("translate failed for owner %s: %s", config.OwnerId, err)
		}
	}
}

func (p *pipeline) publishBatch() {
	outcomes, err := p.scheduler.RunBatch(context.Background(), publication.DefaultBatchSize)
	if err != nil {
		Log.Error("publish batch failed : ", err)
		return
	}
	for _, outcome := range outcomes {
		Log.Infof("publish outcome for post %s: %s %s", outcome.PostId, outcome.Kind, outcome.Message)
	}
}

func main() {
	defer utils.CloseTracer()

	Flag.ParseFlags()
	if err := dotenv.LoadDotEnvs(); err != nil {
		Log.Fatal("fail to load env : ", err)
	}
	utils.InitTracer()

	db, err := utils.GetDBConnection()
	if err != nil {
		Log.Fatal("fail to connect database : ", err)
	}
	if err := utils.DatabaseSetupAndMigration(db); err != nil {
		Log.Fatal("fail to migrate database : ", err)
	}
	gormStore := store.NewGormStore(db)

	var rateLimits store.RateLimitStore = gormStore
	if os.Getenv("REDIS_HOST") != "" {
		redisStore, err := store.GetRedisRateLimitStore()
		if err != nil {
			Log.Warn("fail to connect redis, falling back to sql rate limit store : ", err)
		} else {
			rateLimits = redisStore
		}
	}
	tracker := ratelimit.NewTracker(rateLimits)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	var timeline providers.Timeline
	if bearerToken := os.Getenv("TWITTER_BEARER_TOKEN"); bearerToken != "" {
		timeline = providers.NewTwitterTimeline(httpClient, bearerToken)
	} else {
		timeline = providers.NewScraperTimeline()
	}

	p := &pipeline{
		configs:    gormStore,
		fetcher:    ingestion.NewFetcher(gormStore, gormStore, tracker, timeline),
		stage:      translation.NewStage(gormStore, gormStore, providers.NewOpenAITranslator(httpClient, os.Getenv("OPENAI_API_KEY"))),
		scheduler:  publication.NewScheduler(gormStore, tracker, providers.NewTwitterPublisher(httpClient, os.Getenv("TWITTER_ACCESS_TOKEN"))),
		lastIngest: make(map[string]time.Time),
	}

	// SkipIfStillRunning gives the non-overlap guarantee the scheduler's
	// per-batch fairness set depends on.
	runner := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := runner.AddFunc(ingestSchedule, p.ingestAndTranslate); err != nil {
		Log.Fatal("fail to schedule ingestion : ", err)
	}
	if _, err := runner.AddFunc(publishSchedule, p.publishBatch); err != nil {
		Log.Fatal("fail to schedule publication : ", err)
	}

	Log.Info("pipeline daemon starts up")
	runner.Run()
}
