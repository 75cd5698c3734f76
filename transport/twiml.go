package transport

import (
	"encoding/xml"
	"net/http"

	"github.com/AltairaLabs/CareBridge/logger"
)

// callerParamName is the custom parameter carrying the caller's number
// from the voice webhook's TwiML into the start frame.
const callerParamName = "caller"

// TwiML reply connecting an answered call to a media stream.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string       `xml:"url,attr"`
	Parameters []twimlParam `xml:"Parameter"`
}

type twimlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// VoiceHandler answers the telephony provider's voice webhook with TwiML
// opening a media stream to streamPath on the same host. The caller's
// number is forwarded as a custom parameter so sessions can personalize
// before the first word is spoken.
func VoiceHandler(streamPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.FormValue("From")
		logger.Info("incoming call",
			"caller", logger.RedactPhone(caller),
			"call_sid", r.FormValue("CallSid"),
		)

		resp := twimlResponse{
			Connect: twimlConnect{
				Stream: twimlStream{
					URL: "wss://" + r.Host + streamPath,
					Parameters: []twimlParam{
						{Name: callerParamName, Value: caller},
					},
				},
			},
		}
		out, err := xml.Marshal(resp)
		if err != nil {
			http.Error(w, "twiml encoding failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(xml.Header))
		_, _ = w.Write(out)
	})
}
