package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"plexautoskip/internal/httputil"
	"plexautoskip/internal/models"
)

// controllerID identifies this daemon to the server as a remote controller.
const controllerID = "plexautoskip"

// Player issues remote-control commands to one playback device, proxied
// through the server. Remote players cannot be reached directly from an
// arbitrary controller, so every command targets the server with the
// device's machine identifier in the routing header.
type Player struct {
	server    *Server
	title     string
	machineID string
	commandID atomic.Int64
}

// Player returns a proxied command handle for the given device.
func (s *Server) Player(info models.PlayerInfo) *Player {
	return &Player{
		server:    s,
		title:     info.Title,
		machineID: info.MachineID,
	}
}

func (p *Player) Title() string { return p.title }

type timelineContainer struct {
	XMLName   xml.Name       `xml:"MediaContainer"`
	Timelines []timelineElem `xml:"Timeline"`
}

type timelineElem struct {
	Type      string `xml:"type,attr"`
	State     string `xml:"state,attr"`
	RatingKey string `xml:"ratingKey,attr"`
	Time      string `xml:"time,attr"`
}

// Timeline polls the device's video timeline through the server.
func (p *Player) Timeline(ctx context.Context) (*models.Timeline, error) {
	body, err := p.command(ctx, "/player/timeline/poll", url.Values{"wait": {"0"}})
	if err != nil {
		return nil, err
	}
	var tc timelineContainer
	if err := xml.Unmarshal(body, &tc); err != nil {
		return nil, fmt.Errorf("parsing timeline for %s: %w", p.title, err)
	}
	for _, tl := range tc.Timelines {
		if tl.Type == "video" {
			return &models.Timeline{
				State:     tl.State,
				RatingKey: tl.RatingKey,
				TimeMs:    atoi64(tl.Time),
			}, nil
		}
	}
	return &models.Timeline{State: "stopped"}, nil
}

// SeekTo moves the device's play cursor to the given offset. An
// acknowledgement that is not parseable XML fails with an error wrapping
// models.ErrAckParse; some devices perform the seek correctly and then
// answer with garbage, so callers may treat that as success.
func (p *Player) SeekTo(ctx context.Context, offsetMs int64) error {
	body, err := p.command(ctx, "/player/playback/seekTo", url.Values{
		"offset": {strconv.FormatInt(offsetMs, 10)},
		"type":   {"video"},
	})
	if err != nil {
		return err
	}
	var ack struct {
		XMLName xml.Name `xml:"Response"`
	}
	if err := xml.Unmarshal(body, &ack); err != nil {
		return fmt.Errorf("seek ack from %s: %w", p.title, models.ErrAckParse)
	}
	return nil
}

func (p *Player) command(ctx context.Context, path string, query url.Values) ([]byte, error) {
	query.Set("commandID", strconv.FormatInt(p.commandID.Add(1), 10))
	u := p.server.url + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	p.server.setHeaders(req)
	req.Header.Set("X-Plex-Client-Identifier", controllerID)
	req.Header.Set("X-Plex-Target-Client-Identifier", p.machineID)

	resp, err := p.server.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httputil.DrainBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player %s returned status %d", p.title, resp.StatusCode)
	}
	return httputil.ReadBody(resp)
}
