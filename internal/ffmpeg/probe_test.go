// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbe(t *testing.T) {
	data := []byte(`{
	  "streams": [
	    {"codec_type":"video","codec_name":"mjpeg","width":300,"height":300,"avg_frame_rate":"0/0","disposition":{"attached_pic":1}},
	    {"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"avg_frame_rate":"30000/1001","r_frame_rate":"30000/1001","duration":"12.5"},
	    {"codec_type":"audio","codec_name":"aac"}
	  ],
	  "format": {"duration":"12.6","format_name":"mov,mp4,m4a,3gp,3g2,mj2"}
	}`)

	res, err := ParseProbe(data)
	require.NoError(t, err)
	assert.Equal(t, 1920, res.Width)
	assert.Equal(t, 1080, res.Height)
	assert.Equal(t, "h264", res.VideoCodec)
	assert.Equal(t, "30000/1001", res.FrameRate)
	assert.InDelta(t, 29.97, res.FPS, 0.01)
	assert.InDelta(t, 12.5, res.Duration, 0.001)
	assert.True(t, res.HasAudio)
}

func TestParseProbe_FallsBackToRFrameRateAndFormatDuration(t *testing.T) {
	data := []byte(`{
	  "streams": [{"codec_type":"video","codec_name":"vp9","width":640,"height":360,"avg_frame_rate":"0/0","r_frame_rate":"25/1"}],
	  "format": {"duration":"3.0","format_name":"matroska,webm"}
	}`)
	res, err := ParseProbe(data)
	require.NoError(t, err)
	assert.Equal(t, "25/1", res.FrameRate)
	assert.InDelta(t, 25.0, res.FPS, 0.0001)
	assert.InDelta(t, 3.0, res.Duration, 0.0001)
	assert.False(t, res.HasAudio)
}

func TestParseProbe_Errors(t *testing.T) {
	_, err := ParseProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"aac"}],"format":{}}`))
	assert.ErrorIs(t, err, ErrNoVideoStream)

	_, err = ParseProbe([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseProbe([]byte(`{"streams":[{"codec_type":"video","codec_name":"h264","width":10,"height":10,"avg_frame_rate":"0/0"}],"format":{}}`))
	assert.Error(t, err)
}
