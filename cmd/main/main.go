package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"tokenbank/pkg/config"
	"tokenbank/pkg/filedb"
	"tokenbank/pkg/gateway"
	"tokenbank/pkg/model"
	"tokenbank/pkg/token"
	"tokenbank/pkg/xetcd"
	"tokenbank/pkg/xlog"
	"tokenbank/pkg/xnats"
)

var logger = xlog.GetLogger()

var (
	fApp     string
	fLogDir  string
	fLogFile string
)

var (
	apps = map[string]bool{"token": true, "gw": true, "bm": true, "fm": true}
)

func init() {
	flag.StringVar(&fApp, "app", "", "")
	flag.StringVar(&fLogDir, "logdir", "", "")
	flag.StringVar(&fLogFile, "logfile", "", "")
}

func main() {
	var err error
	flag.Parse()

	if !apps[fApp] {
		validApps := ""
		for k := range apps {
			validApps += k + ", "
		}
		panic("invalid app, only (" + validApps + ") avaliable")
	}

	// Initialize the Shared config
	config.EasyInit()

	// Initialize the logger
	if fLogDir == "" {
		fLogDir = filepath.Join(config.Shared.DataDir, "logs")
	}
	if fLogFile == "" {
		fLogFile = fApp + ".log"
	}
	logPath := filepath.Join(fLogDir, fLogFile)
	xlog.Init(fApp, logPath)
	logger.Info(fApp + " started")
	logger.Infof("xlog in %s", logPath)

	// Handle signals
	go handleSignals()

	// Initialize the etcd instance
	err = xetcd.InitShared([]string{config.Shared.Etcd.Main.Url})
	if err != nil {
		logger.Errorf("xetcd.InitShared failed with err:%s", err)
		panic(err)
	}

	// Initialize the database instances(mysql, redis)
	// fatal if failed
	model.DBInit()

	// Start the app
	switch fApp {
	case "":
		return
	case "token":
		err = startToken()
	case "gw":
		err = startGateway()
	case "bm":
		err = PrepareForBenchmark()
	case "fm":
		err = startFiledbMonitor()
	default:
		return
	}

	if err != nil {
		logger.Error(err)
		panic(err)
	}
}

// handleSignals handles linux signals
//
//	Function 1: Change log level via SIGUSR1 signal
//		docker exec <container_id> sh -c 'export XLOG_LVL=TRACE && kill -SIGUSR1 1'
func handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	logLevelChan := make(chan string)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGUSR1 {
				// Read log level from environment variable
				level := os.Getenv("XLOG_LVL")
				if level != "" {
					logLevelChan <- level
				}
			}
		case level := <-logLevelChan:
			logger := xlog.GetLogger()
			logger.SetLevel(level)
			logger.Infof("Log level set to %s via signal", level)
		}
	}
}

func startToken() (err error) {
	w, err := token.New()
	if err != nil {
		return
	}

	err = w.Run()
	if err != nil {
		return
	}

	return
}

// startGateway starts the gateway benchmark app
//
//	Function 1: Generate transfer actions among seeded accounts and send to Nats
//	Function 2: Benchmark the gateway app
func startGateway() (err error) {
	gw := &gateway.Worker{}

	for i := 0; i < 100; i++ {
		_, err = gw.GetNats()
		if err != nil {
			logger.Errorf("gw.GetNats failed with err:%s", err)
		} else {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		return
	}

	err = gw.EnsureStream()
	if err != nil {
		return
	}

	// register the symbol and hand the whole supply to the first account
	err = gw.SendActionReq(xnats.ActionReq{
		Action:   xnats.ActionCreate,
		Auths:    []string{config.Shared.Owner},
		Issuer:   "u1",
		Quantity: "100000000.0000 TOK",
	})
	if err != nil {
		return
	}
	err = gw.SendActionReq(xnats.ActionReq{
		Action:   xnats.ActionIssue,
		Auths:    []string{"u1"},
		To:       "u1",
		Quantity: "100000000.0000 TOK",
	})
	if err != nil {
		return
	}

	// fan the supply out with random transfers
	ch := make(chan xnats.ActionReq, 1024)
	ch2 := make(chan int64, 1024)
	curr := 16
	sentReqs := int64(0)
	targetReqs := int64(1_000_000)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		for {
			num, ok := <-ch2
			if !ok {
				logger.Infof("comsumer:ch2 done")
				return
			}
			sentReqs += num
			if sentReqs >= targetReqs {
				wg.Done()
			}
		}
	}()

	for i := 0; i < curr; i++ {
		go func(j int) {
			for {
				req, ok := <-ch
				if !ok {
					logger.Infof("comsumer:%d done", j)
					ch2 <- 1
					return
				}
				err := gw.SendActionReq(req)
				if err != nil {
					logger.Errorf("SendActionReq failed with err:%s", err)
				}
				ch2 <- 1
			}
		}(i)
	}

	start := time.Now()
	for i := 0; i < int(targetReqs); i++ {
		from := fmt.Sprintf("u%d", 1+rand.Int63n(1000))
		to := fmt.Sprintf("u%d", 1+rand.Int63n(1000))
		amount := 1 + rand.Int63n(10)
		req := xnats.ActionReq{
			Action:   xnats.ActionTransfer,
			Auths:    []string{from},
			From:     from,
			To:       to,
			Quantity: fmt.Sprintf("%d.0000 TOK", amount),
			Memo:     fmt.Sprintf("bm %d", i),
		}
		ch <- req
	}

	wg.Wait()

	// Benchmark result

	rate := int64(0)
	if int64(time.Since(start).Seconds()) > 0 {
		rate = sentReqs / int64(time.Since(start).Seconds())
	}
	fmt.Printf(
		"Benchmark: Gateway sent %d actions to NATS in %s at %s with rate %d/sec\n",
		targetReqs, time.Since(start), time.Now().Format(time.RFC3339), rate,
	)

	return
}

// startFiledbMonitor starts the filedb monitor app
//
//	Function 1: Monitor the filedb log files and print the benchmark result every 30 seconds
func startFiledbMonitor() (err error) {
	for {
		time.Sleep(30 * time.Second)
		err = runFiledbMonitorOne()
		if err != nil {
			logger.Errorf("runFiledbMonitorOne failed with err:%s", err)
		}
	}
}

// runFiledbMonitorOne runs the filedb monitor one time
//
//	Function 1: Traverse all files ending with .log,
//		read the first and last line of each file,
//		each line should be a json object,
//		parse out {ts: nanosec, logID: int64} values,
//		calculate the time difference and logID difference, and output
func runFiledbMonitorOne() (err error) {
	filedbLogDir := path.Join(config.Shared.DataDir, "filedb")

	err = filepath.Walk(filedbLogDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			fdb, err := filedb.New(path)
			if err != nil {
				return err
			}
			defer fdb.Close()

			firstLine, err := fdb.ReadFirstLine()
			if err != nil {
				return err
			}
			lastLine, err := fdb.ReadLastLine()
			if err != nil {
				return err
			}

			var firstLog, lastLog struct {
				Ts    int64 `json:"ts"`
				LogID int64 `json:"logID"`
			}

			if err := json.Unmarshal([]byte(firstLine), &firstLog); err != nil {
				return err
			}
			if err := json.Unmarshal([]byte(lastLine), &lastLog); err != nil {
				return err
			}

			timeDiff := (lastLog.Ts - firstLog.Ts)
			logIDDiff := lastLog.LogID - firstLog.LogID

			// timeDiff to duration
			duration := time.Duration(timeDiff) * time.Nanosecond
			lastLogTime := time.Unix(0, lastLog.Ts)

			rate := int64(0)
			if int64(duration.Seconds()) > 0 {
				rate = logIDDiff / int64(duration.Seconds())
			}
			fmt.Printf(
				"Benchmark: %s saved %d logs to filedb in %s at %s with rate %d/sec\n",
				path, logIDDiff, duration, lastLogTime.Format(time.RFC3339), rate,
			)
		}
		return nil
	})
	if err != nil {
		return
	}

	return
}
