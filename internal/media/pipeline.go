// Package media turns a stored or local interview video into an uploaded audio track.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/types"
)

var supportedVideoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
	".wmv": true,
}

type Config struct {
	Bucket     string
	FFmpegPath string
	TempDir    string
}

type Pipeline struct {
	objects ObjectStore
	cfg     Config
	log     *logrus.Entry

	runner    commandRunner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	stat      func(name string) (os.FileInfo, error)
	newRunID  func() string
}

func NewPipeline(objects ObjectStore, cfg Config, log *logrus.Entry) *Pipeline {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &Pipeline{
		objects:   objects,
		cfg:       cfg,
		log:       log.WithField("component", "media-pipeline"),
		runner:    execRunner{},
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		stat:      os.Stat,
		newRunID:  uuid.NewString,
	}
}

// Process makes the audio of videoRef available in the bucket. videoRef is either an
// s3:// URI or a local file, which is uploaded under videos/ first. Every call writes
// under its own run id so videos sharing a file name never share an object.
func (p *Pipeline) Process(ctx context.Context, videoRef string) (types.MediaResult, error) {
	runID := p.newRunID()
	workDir, err := p.mkdirTemp(p.cfg.TempDir, "interview-media-*")
	if err != nil {
		return failed(apperr.Media("prepare", "create work dir", err))
	}
	defer func() {
		if err := p.removeAll(workDir); err != nil {
			p.log.WithField("error", err.Error()).Warn("cleanup work dir failed")
		}
	}()

	var (
		videoURI  string
		localPath string
	)
	if strings.HasPrefix(videoRef, "s3://") {
		videoURI = videoRef
		localPath, err = p.fetch(ctx, videoRef, workDir)
	} else {
		localPath = videoRef
		videoURI, err = p.publishLocal(ctx, videoRef, runID)
	}
	if err != nil {
		return failed(err)
	}

	stem := strings.TrimSuffix(filepath.Base(localPath), filepath.Ext(localPath))
	audioPath := filepath.Join(workDir, stem+"_audio.wav")
	if err := p.extractAudio(ctx, localPath, audioPath); err != nil {
		return failed(err)
	}

	audioKey := "audio/" + runID + "/" + stem + "_audio.wav"
	if err := p.objects.Upload(ctx, audioPath, p.cfg.Bucket, audioKey, "audio/wav"); err != nil {
		return failed(apperr.Media("upload", "upload audio", err))
	}

	res := types.MediaResult{
		Status:   types.MediaStatusSuccess,
		VideoURI: videoURI,
		AudioURI: S3URI(p.cfg.Bucket, audioKey),
	}
	p.log.WithFields(logrus.Fields{"video_uri": res.VideoURI, "audio_uri": res.AudioURI}).Info("audio extracted")
	return res, nil
}

func (p *Pipeline) fetch(ctx context.Context, uri, workDir string) (string, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", apperr.Media("download", "bad video reference", err)
	}
	ok, err := p.objects.Exists(ctx, bucket, key)
	if err != nil {
		return "", apperr.Media("download", "check video", err)
	}
	if !ok {
		return "", apperr.Media("download", "video not found: "+uri, nil)
	}
	path := filepath.Join(workDir, filepath.Base(key))
	if err := p.objects.Download(ctx, bucket, key, path); err != nil {
		return "", apperr.Media("download", "download video", err)
	}
	return path, nil
}

func (p *Pipeline) publishLocal(ctx context.Context, path, runID string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedVideoExtensions[ext] {
		return "", apperr.Media("validate", "unsupported video format "+ext, nil)
	}
	info, err := p.stat(path)
	if err != nil {
		return "", apperr.Media("validate", "video file not found: "+path, err)
	}
	if info.IsDir() {
		return "", apperr.Media("validate", "video path is a directory: "+path, nil)
	}
	key := "videos/" + runID + "/" + filepath.Base(path)
	if err := p.objects.Upload(ctx, path, p.cfg.Bucket, key, "video/"+strings.TrimPrefix(ext, ".")); err != nil {
		return "", apperr.Media("upload", "upload video", err)
	}
	return S3URI(p.cfg.Bucket, key), nil
}

func (p *Pipeline) extractAudio(ctx context.Context, inputPath, outPath string) error {
	res, err := p.runner.Run(ctx, p.cfg.FFmpegPath, audioExtractArgs(inputPath, outPath)...)
	if err == nil {
		return nil
	}
	stderr := strings.TrimSpace(res.Stderr)
	if strings.Contains(stderr, "does not contain any stream") || strings.Contains(stderr, "Output file is empty") {
		return apperr.Media("extract", "no audio track found", nil)
	}
	if len(stderr) > 512 {
		stderr = stderr[len(stderr)-512:]
	}
	return apperr.Media("extract", fmt.Sprintf("ffmpeg exited with code %d: %s", res.ExitCode, stderr), err)
}

func failed(err error) (types.MediaResult, error) {
	return types.MediaResult{Status: types.MediaStatusError, Message: err.Error()}, err
}
