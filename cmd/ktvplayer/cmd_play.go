package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dzero1996/Nebula-KTV/internal/backend"
	"github.com/Dzero1996/Nebula-KTV/internal/events"
	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play one song until it ends",
	Long: `Play a song from the catalog (--song) or from explicit media files.

Examples:
  ktvplayer play --song 3f2a9c
  ktvplayer play --video clip.mp4 --original vocal.flac --instrumental inst.flac --lyrics song.vtt`,
	RunE: runPlay,
}

var (
	playSong         string
	playVideo        string
	playOriginal     string
	playInstrumental string
	playLyrics       string
	playVocal        string
)

func init() {
	playCmd.Flags().StringVar(&playSong, "song", "", "catalog song ID")
	playCmd.Flags().StringVar(&playVideo, "video", "", "video file or URL")
	playCmd.Flags().StringVar(&playOriginal, "original", "", "original (vocal) audio file or URL")
	playCmd.Flags().StringVar(&playInstrumental, "instrumental", "", "instrumental audio file or URL")
	playCmd.Flags().StringVar(&playLyrics, "lyrics", "", "lyrics file (.vtt, .yaml, .json)")
	playCmd.Flags().StringVar(&playVocal, "vocal", "", "vocal mode to switch to once ready (original|instrumental)")
	playCmd.MarkFlagsMutuallyExclusive("song", "video")
	playCmd.MarkFlagsMutuallyExclusive("song", "original")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	if playSong == "" && playVideo == "" {
		return errors.New("either --song or --video is required")
	}
	var vocal playback.VocalMode
	if playVocal != "" {
		mode, err := playback.ParseVocalMode(playVocal)
		if err != nil {
			return fmt.Errorf("--vocal: %w", err)
		}
		vocal = mode
	}

	if err := loadConfig(); err != nil {
		return err
	}

	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var src playback.Sources
	if playSong != "" {
		src, err = eng.loader.LoadSong(ctx, playSong)
	} else {
		src, err = eng.loader.LoadFiles(ctx, backend.Files{
			SongID:       "local",
			Video:        playVideo,
			Original:     playOriginal,
			Instrumental: playInstrumental,
			Lyrics:       playLyrics,
		})
	}
	if err != nil {
		return err
	}

	ready := eng.bus.Subscribe(events.EventReady)
	defer eng.bus.Unsubscribe(events.EventReady, ready)
	ended := eng.bus.Subscribe(events.EventEnded)
	defer eng.bus.Unsubscribe(events.EventEnded, ended)
	degraded := eng.bus.Subscribe(events.EventDegraded)
	defer eng.bus.Unsubscribe(events.EventDegraded, degraded)

	if _, err := eng.manager.Load(ctx, src); err != nil {
		return err
	}
	if err := eng.manager.Play(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("playback interrupted")
			return nil
		case <-ready:
			logger.Info().Msg("all tracks ready")
			if vocal != "" {
				go switchVocal(ctx, eng.manager, vocal)
			}
		case p := <-degraded:
			logger.Warn().Interface("state", p).Msg("playback degraded")
		case <-ended:
			logger.Info().Msg("song ended")
			return nil
		}
	}
}

func switchVocal(ctx context.Context, m *playback.Manager, mode playback.VocalMode) {
	if err := m.SetVocalMode(ctx, mode); err != nil {
		logger.Warn().Err(err).Str("mode", string(mode)).Msg("vocal mode switch failed")
	}
}
