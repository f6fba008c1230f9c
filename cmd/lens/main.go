/*
DESCRIPTION
  lens is a camera capture client running a lens engine whose behaviour is
  controllable through a local HTTP interface, a YAML config file and, when
  enabled, cloud variables via netsender.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Alan Noble <alan@ausocean.org>
  Dan Kortschak <dan@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package lens is a camera capture client.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/client/pi/netlogger"
	"github.com/ausocean/client/pi/netsender"
	"github.com/ausocean/lens/audio"
	"github.com/ausocean/lens/config"
	"github.com/ausocean/lens/device"
	"github.com/ausocean/lens/device/file"
	"github.com/ausocean/lens/device/sim"
	"github.com/ausocean/lens/device/torch"
	"github.com/ausocean/lens/device/webcam"
	"github.com/ausocean/lens/snap"
	"github.com/ausocean/lens/store"
	"github.com/ausocean/lens/web"
	"github.com/ausocean/utils/logging"
)

// Current software version.
const version = "v0.3.0"

// Logging configuration.
const (
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

// Netsender modes.
const (
	modeNormal    = "Normal"
	modePaused    = "Paused"
	modeBurst     = "Burst"
	modeShutdown  = "Shutdown"
	modeCompleted = "Completed"
)

// Misc constants.
const (
	netSendRetryTime = 5 * time.Second
	defaultSleepTime = 60 // Seconds
	pkg              = "lens: "
)

// Software defined pins.
const (
	lumaPin    = "X40"
	framesPin  = "X41"
	droppedPin = "X42"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version")
		configPath  = flag.String("config", "/etc/lens/lens.yaml", "path of the YAML config file")
		logPath     = flag.String("log", "/var/log/lens/lens.log", "path of the log file")
		useNS       = flag.Bool("netsender", false, "take configuration and mode from cloud variables")
	)
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   *logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}

	// Create netlogger to handle logging to cloud.
	netLog := netlogger.New()

	// Create logger that we call methods on to log, which in turn writes to the
	// lumberjack and netloggers.
	log := logging.New(logVerbosity, io.MultiWriter(fileLog, netLog), logSuppress)
	log.Info("starting lens", "version", version)

	cfg := config.Config{Logger: log, LogLevel: logVerbosity}
	vars, err := loadVars(*configPath)
	if err != nil {
		log.Warning(pkg+"could not load config file, using defaults", "path", *configPath, "error", err)
	}
	cfg.Update(vars)
	cfg.Validate()
	log.SetLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg, closeDevices, err := devices(cfg, log)
	if err != nil {
		log.Fatal(pkg+"could not set up devices", "error", err)
	}
	defer closeDevices()

	st, err := store.NewFile(log, cfg.OutputPath, cfg.JPEGQuality, uint64(cfg.MinFreeSpace))
	if err != nil {
		log.Fatal(pkg+"could not create store", "error", err)
	}

	am := shutter(cfg, log)

	eng, err := snap.New(cfg, reg, st, am, nil)
	if err != nil {
		log.Fatal(pkg+"could not create engine", "error", err)
	}

	sched := newScheduler(log, eng.Bus())
	defer sched.Stop()
	err = sched.Set(cfg.Schedule)
	if err != nil {
		log.Error(pkg+"could not set capture schedule", "error", err)
	}

	if cfg.HTTPAddress != "" {
		srv := web.New(log, eng, cfg.JPEGQuality)
		go func() {
			err := srv.ListenAndServe(ctx, cfg.HTTPAddress)
			if err != nil {
				log.Error(pkg+"http server failed", "error", err)
			}
		}()
	}

	go func() {
		err := watch(ctx, log, *configPath, func(vars map[string]string) {
			err := eng.Update(vars)
			if err != nil {
				log.Warning(pkg+"could not update engine", "error", err)
			}
			err = sched.Set(eng.Config().Schedule)
			if err != nil {
				log.Error(pkg+"could not set capture schedule", "error", err)
			}
		})
		if err != nil {
			log.Warning(pkg+"config file not watched", "error", err)
		}
	}()

	if *useNS {
		log.Debug("initialising netsender client")
		ns, err := netsender.New(log, nil, readPin(eng, log), nil, netsender.WithVarTypes(createVarMap()))
		if err != nil {
			log.Fatal(pkg+"could not initialise netsender client", "error", err)
		}
		notifyReady(log)
		log.Debug("beginning main loop")
		run(ctx, eng, ns, log, netLog, sched)
		eng.Stop()
		return
	}

	err = eng.Start(ctx)
	if err != nil {
		log.Fatal(pkg+"could not start engine", "error", err)
	}
	notifyReady(log)
	<-ctx.Done()
	log.Info("shutting down")
	eng.Stop()
}

// devices returns a registry of the cameras selected by c, and a function
// releasing any hardware they use.
func devices(c config.Config, l logging.Logger) (*device.Registry, func(), error) {
	switch c.Input {
	case config.InputWebcam:
		var t webcam.Torch
		closeTorch := func() {}
		if c.TorchPin != 0 {
			tt, err := torch.New(l, c.TorchPin)
			if err != nil {
				l.Warning(pkg+"no torch; flash disabled", "pin", c.TorchPin, "error", err)
			} else {
				t = tt
				closeTorch = func() { tt.Close() }
			}
		}
		back := webcam.New(l, device.Info{ID: "webcam-back", Position: device.Back, MaxZoom: 4}, c.BackInputPath, t)
		front := webcam.New(l, device.Info{ID: "webcam-front", Position: device.Front, MaxZoom: 4}, c.FrontInputPath, nil)
		reg := device.NewRegistry()
		for _, cam := range []*webcam.Webcam{back, front} {
			err := cam.Set(c)
			if err != nil {
				l.Warning(pkg+"webcam config defaulted", "id", cam.Info().ID, "error", err)
			}
			reg.Add(cam)
		}
		return reg, closeTorch, nil

	case config.InputFile:
		back := file.New(l, device.Info{ID: "file-back", Position: device.Back}, c.BackInputPath, nil)
		front := file.New(l, device.Info{ID: "file-front", Position: device.Front}, c.FrontInputPath, nil)
		for _, cam := range []*file.Camera{back, front} {
			err := cam.Set(c)
			if err != nil {
				l.Warning(pkg+"file config defaulted", "id", cam.Info().ID, "error", err)
			}
		}
		return device.NewRegistry(back, front), func() {}, nil

	case config.InputSim:
		back := sim.New(l, sim.Options{Position: device.Back, MaxZoom: 8})
		front := sim.New(l, sim.Options{Position: device.Front, MaxZoom: 2})
		for _, cam := range []*sim.Camera{back, front} {
			err := cam.Set(c)
			if err != nil {
				l.Warning(pkg+"sim config defaulted", "id", cam.Info().ID, "error", err)
			}
		}
		return device.NewRegistry(back, front), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown input: %d", c.Input)
}

// shutter returns the audio manager applying the shutter policy of c.
func shutter(c config.Config, l logging.Logger) *audio.Manager {
	sound := audio.Click()
	if c.ShutterSound != "" {
		s, err := audio.Load(c.ShutterSound)
		if err != nil {
			l.Warning(pkg+"could not load shutter sound, using click", "path", c.ShutterSound, "error", err)
		} else {
			sound = s
		}
	}
	policy := audio.Silent
	if c.ShutterAudible {
		policy = audio.Audible
	}
	return audio.NewManager(l, audio.NewMixer(l), newPlayer(l, sound), sound, policy, c.ForceShutter)
}

// notifyReady tells systemd that startup has finished.
func notifyReady(l logging.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		l.Warning(pkg+"could not notify systemd", "error", err)
		return
	}
	l.Debug("systemd notified", "sent", sent)
}

// run starts the main loop. This will run netsender on every pass of the loop
// (sleeping inbetween), check vars, and if changed, update the engine as
// appropriate.
func run(ctx context.Context, eng *snap.Engine, ns *netsender.Sender, l logging.Logger, nl *netlogger.Logger, sched *scheduler) {
	var vs int
	for ctx.Err() == nil {
		l.Debug("running netsender")
		err := ns.Run()
		if err != nil {
			l.Warning(pkg+"Run Failed. Retrying...", "error", err.Error())
			sleepFor(ctx, netSendRetryTime)
			continue
		}

		l.Debug("sending logs")
		err = nl.Send(ns)
		if err != nil {
			l.Warning(pkg+"Logs could not be sent", "error", err.Error())
		}

		l.Debug("checking varsum")
		newVs := ns.VarSum()
		if vs == newVs {
			sleep(ctx, ns, l)
			continue
		}
		vs = newVs
		l.Info("varsum changed", "vs", vs)

		vars, err := ns.Vars()
		if err != nil {
			l.Error(pkg+"netSender failed to get vars", "error", err.Error())
			sleepFor(ctx, netSendRetryTime)
			continue
		}
		l.Debug("got new vars", "vars", vars)

		err = eng.Update(vars)
		if err != nil {
			l.Warning(pkg+"couldn't update engine", "error", err.Error())
		}
		err = sched.Set(eng.Config().Schedule)
		if err != nil {
			l.Error(pkg+"could not set capture schedule", "error", err)
		}

		l.Debug("checking mode")
		switch ns.Mode() {
		case modePaused, modeCompleted:
			l.Debug("mode is Paused or Completed, stopping engine")
			if eng.Running() {
				eng.Stop()
			}
		case modeNormal:
			l.Debug("mode is Normal, starting engine")
			err = eng.Start(ctx)
			if err != nil {
				l.Error(pkg+"could not start engine", "error", err.Error())
				ns.SetMode(modePaused)
			}
		case modeBurst:
			l.Debug("mode is Burst, capturing burst")
			err = burst(ctx, eng)
			if err != nil {
				l.Warning(pkg+"could not capture burst", "error", err.Error())
			}
			ns.SetMode(modePaused)
		case modeShutdown:
			l.Debug("mode is Shutdown, shutting down")
			eng.Stop()
			ns.SetMode(modePaused)
			return
		}
		l.Info("engine updated with new mode")

		sleep(ctx, ns, l)
	}
}

// createVarMap returns the types of the config variables, keyed by name.
func createVarMap() map[string]string {
	m := make(map[string]string)
	for _, v := range config.Variables {
		m[v.Name] = v.Type
	}
	return m
}

// sleep uses a delay to halt the program based on the monitoring period
// netsender parameter (mp) defined in the netsender.conf config.
func sleep(ctx context.Context, ns *netsender.Sender, l logging.Logger) {
	l.Debug("sleeping")
	t, err := strconv.Atoi(ns.Param("mp"))
	if err != nil {
		l.Error(pkg+"could not get sleep time, using default", "error", err)
		t = defaultSleepTime
	}
	sleepFor(ctx, time.Duration(t)*time.Second)
	l.Debug("finished sleeping")
}

func sleepFor(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// readPin provides a callback function of consistent signature for use by
// netsender to retrieve software defined pin values e.g. frame luma.
func readPin(eng *snap.Engine, l logging.Logger) func(pin *netsender.Pin) error {
	return func(pin *netsender.Pin) error {
		pin.Value = -1
		st, err := eng.Status()
		if err != nil {
			return nil
		}
		switch pin.Name {
		case lumaPin:
			pin.Value = int(st.Luma * 1000)
			l.Debug("setting luma pin", "luma", st.Luma)
		case framesPin:
			pin.Value = int(st.Frames)
		case droppedPin:
			pin.Value = int(st.Dropped)
		}
		return nil
	}
}
