package server

import (
	"LiqWatch/internal/query"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/cors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxBodyBytes = 1 << 16

// Handler returns the HTTP/JSON API. Routes are registered on the
// grpc-gateway mux and call the service in-process.
func (s *Server) Handler() http.Handler {
	mux := runtime.NewServeMux()

	s.route(mux, http.MethodGet, "/v1/snapshot", "snapshot", func(r *http.Request, _ map[string]string) (interface{}, error) {
		return s.svc.GetSnapshot(r.Context(), &query.GetSnapshotRequest{})
	})
	s.route(mux, http.MethodGet, "/v1/positions", "positions", func(r *http.Request, _ map[string]string) (interface{}, error) {
		q := r.URL.Query()
		req := &query.ListPositionsRequest{Sort: q.Get("sort")}
		var err error
		if req.AtRiskOnly, err = boolParam(q.Get("at_risk")); err != nil {
			return nil, err
		}
		if req.Limit, err = intParam(q.Get("limit")); err != nil {
			return nil, err
		}
		return s.svc.ListPositions(r.Context(), req)
	})
	s.route(mux, http.MethodGet, "/v1/positions/{address}", "position", func(r *http.Request, p map[string]string) (interface{}, error) {
		return s.svc.GetPosition(r.Context(), &query.GetPositionRequest{Address: p["address"]})
	})
	s.route(mux, http.MethodGet, "/v1/curve", "curve", func(r *http.Request, _ map[string]string) (interface{}, error) {
		q := r.URL.Query()
		req := &query.GetRiskCurveRequest{}
		var err error
		if req.Min, err = floatParam(q.Get("min")); err != nil {
			return nil, err
		}
		if req.Max, err = floatParam(q.Get("max")); err != nil {
			return nil, err
		}
		if req.Step, err = floatParam(q.Get("step")); err != nil {
			return nil, err
		}
		return s.svc.GetRiskCurve(r.Context(), req)
	})
	s.route(mux, http.MethodGet, "/v1/simulate", "simulate", func(r *http.Request, _ map[string]string) (interface{}, error) {
		price, err := floatParam(r.URL.Query().Get("price"))
		if err != nil {
			return nil, err
		}
		return s.svc.SimulatePrice(r.Context(), &query.SimulatePriceRequest{Price: price})
	})
	s.route(mux, http.MethodGet, "/v1/addresses", "addresses.list", func(r *http.Request, _ map[string]string) (interface{}, error) {
		return s.svc.ListAddresses(r.Context(), &query.ListAddressesRequest{})
	})
	s.route(mux, http.MethodPost, "/v1/addresses", "addresses.add", func(r *http.Request, _ map[string]string) (interface{}, error) {
		var req query.AddAddressRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, fmt.Errorf("%w: body: %v", query.ErrInvalidArgument, err)
		}
		return s.svc.AddAddress(r.Context(), &req)
	})
	s.route(mux, http.MethodDelete, "/v1/addresses/{address}", "addresses.remove", func(r *http.Request, p map[string]string) (interface{}, error) {
		return s.svc.RemoveAddress(r.Context(), &query.RemoveAddressRequest{Address: p["address"]})
	})
	s.route(mux, http.MethodGet, "/v1/transactions/{address}", "transactions", func(r *http.Request, p map[string]string) (interface{}, error) {
		q := r.URL.Query()
		req := &query.ListTransactionsRequest{Address: p["address"]}
		var err error
		if req.Page, err = intParam(q.Get("page")); err != nil {
			return nil, err
		}
		if req.Offset, err = intParam(q.Get("offset")); err != nil {
			return nil, err
		}
		return s.svc.ListTransactions(r.Context(), req)
	})
	s.route(mux, http.MethodGet, "/v1/history", "history", func(r *http.Request, _ map[string]string) (interface{}, error) {
		limit, err := intParam(r.URL.Query().Get("limit"))
		if err != nil {
			return nil, err
		}
		return s.svc.GetHistory(r.Context(), &query.GetHistoryRequest{Limit: limit})
	})

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)

	if len(s.corsOrigins) == 0 {
		return httpMux
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(httpMux)
}

type routeFunc func(r *http.Request, params map[string]string) (interface{}, error)

func (s *Server) route(mux *runtime.ServeMux, method, pattern, endpoint string, fn routeFunc) {
	err := mux.HandlePath(method, pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		resp, err := fn(r, params)
		if err != nil {
			st := status.Convert(toStatus(err))
			s.observe("http."+endpoint, st.Code(), start)
			if st.Code() == codes.Internal {
				s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
			}
			writeError(w, st)
			return
		}
		s.observe("http."+endpoint, codes.OK, start)
		writeJSON(w, http.StatusOK, resp)
	})
	if err != nil {
		// patterns are static; a bad one is a programming error
		panic(fmt.Sprintf("register %s %s: %v", method, pattern, err))
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, st *status.Status) {
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), errorBody{Code: st.Code().String(), Message: st.Message()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", query.ErrInvalidArgument, s)
	}
	return v, nil
}

func floatParam(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", query.ErrInvalidArgument, s)
	}
	return v, nil
}

func boolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean", query.ErrInvalidArgument, s)
	}
	return v, nil
}
