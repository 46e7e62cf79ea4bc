package main

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tweetbridge/tweetbridge/ingestion"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/publication"
	"github.com/tweetbridge/tweetbridge/ratelimit"
	"github.com/tweetbridge/tweetbridge/server"
	"github.com/tweetbridge/tweetbridge/server/middlewares"
	"github.com/tweetbridge/tweetbridge/store"
	"github.com/tweetbridge/tweetbridge/translation"
	"github.com/tweetbridge/tweetbridge/utils"
	"github.com/tweetbridge/tweetbridge/utils/dotenv"
	Flag "github.com/tweetbridge/tweetbridge/utils/flag"
	. "github.com/tweetbridge/tweetbridge/utils/log"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

func cleanup() {
	utils.CloseProfiler()
	utils.CloseTracer()
	Log.Info("api server shutdown")
}

func main() {
	defer cleanup()

	Flag.ParseFlags()
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	utils.InitTracer()
	utils.InitProfiler()

	db, err := utils.GetDBConnection()
	if err != nil {
		Log.Fatal("fail to connect database : ", err)
	}
	if err := utils.DatabaseSetupAndMigration(db); err != nil {
		Log.Fatal("fail to migrate database : ", err)
	}
	gormStore := store.NewGormStore(db)

	// Rate limit records live in redis when available, with the sql store as
	// fallback. Both honor the same expiry semantics.
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

	// Providers are injected here once, per deployment credentials. Owners
	// without API credentials fall back to the keyless scraper timeline.
	var timeline providers.Timeline
	if bearerToken := os.Getenv("TWITTER_BEARER_TOKEN"); bearerToken != "" {
		timeline = providers.NewTwitterTimeline(httpClient, bearerToken)
	} else {
		timeline = providers.NewScraperTimeline()
	}
	translator := providers.NewOpenAITranslator(httpClient, os.Getenv("OPENAI_API_KEY"))
	publisher := providers.NewTwitterPublisher(httpClient, os.Getenv("TWITTER_ACCESS_TOKEN"))

	handler := &server.PipelineHandler{
		Configs:   gormStore,
		Fetcher:   ingestion.NewFetcher(gormStore, gormStore, tracker, timeline),
		Stage:     translation.NewStage(gormStore, gormStore, translator),
		Scheduler: publication.NewScheduler(gormStore, tracker, publisher),
	}

	// Default With the Logger and Recovery middleware already attached
	router := gin.Default()
	router.Use(cors.Default())
	router.Use(gintrace.Middleware(*Flag.ServiceName))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	triggers := router.Group("/", middlewares.CronAuth())
	server.RegisterTriggerRoutes(triggers, handler)

	Log.Info("api server starts up")
	router.Run(":8080")
}
