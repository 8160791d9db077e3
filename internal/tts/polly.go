package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// PollyConfig tunes the AWS Polly synthesizer.
type PollyConfig struct {
	Region      string
	CallTimeout time.Duration
}

// PollySynthesizer implements Synthesizer on AWS Polly, returning MP3.
type PollySynthesizer struct {
	client  *polly.Client
	timeout time.Duration
}

func NewPollySynthesizer(ctx context.Context, cfg PollyConfig) (*PollySynthesizer, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("polly region is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &PollySynthesizer{
		client:  polly.NewFromConfig(awsCfg),
		timeout: cfg.CallTimeout,
	}, nil
}

func (p *PollySynthesizer) Synthesize(ctx context.Context, text, language, voiceType string) (Result, error) {
	voice, err := VoiceFor(language, voiceType)
	if err != nil {
		return Result{}, err
	}
	engine := pollytypes.EngineStandard
	if voiceType == "neural" {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         aws.String(text),
		VoiceId:      pollytypes.VoiceId(voice),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("synthesize %s/%s: %w", language, voiceType, ErrTimeout)
		}
		return Result{}, fmt.Errorf("synthesize %s/%s: %w", language, voiceType, err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return Result{}, fmt.Errorf("read audio stream: %w", err)
	}
	return Result{Audio: audio, Format: "mp3"}, nil
}
