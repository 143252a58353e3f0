package grpc

import (
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// describeStatus formats a status and its details for ErrorMessage, e.g.
// "InvalidArgument: bad name; name: must not be empty".
func describeStatus(st *status.Status) string {
	parts := []string{fmt.Sprintf("%s: %s", st.Code(), st.Message())}
	for _, d := range st.Details() {
		if text := describeDetail(d); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "; ")
}

// statusBody renders the status as google.rpc.Status JSON.
func statusBody(st *status.Status) []byte {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st.Proto())
	if err != nil {
		return []byte(describeStatus(st))
	}
	return b
}

func describeDetail(d any) string {
	switch d := d.(type) {
	case *errdetails.BadRequest:
		var out []string
		for _, v := range d.GetFieldViolations() {
			out = append(out, fmt.Sprintf("%s: %s", v.GetField(), v.GetDescription()))
		}
		return strings.Join(out, ", ")
	case *errdetails.ErrorInfo:
		return fmt.Sprintf("reason %s (domain %s)", d.GetReason(), d.GetDomain())
	case *errdetails.RetryInfo:
		return fmt.Sprintf("retry after %s", d.GetRetryDelay().AsDuration())
	case *errdetails.DebugInfo:
		return d.GetDetail()
	case *errdetails.QuotaFailure:
		var out []string
		for _, v := range d.GetViolations() {
			out = append(out, fmt.Sprintf("quota %s: %s", v.GetSubject(), v.GetDescription()))
		}
		return strings.Join(out, ", ")
	case *errdetails.PreconditionFailure:
		var out []string
		for _, v := range d.GetViolations() {
			out = append(out, fmt.Sprintf("precondition %s %s: %s", v.GetType(), v.GetSubject(), v.GetDescription()))
		}
		return strings.Join(out, ", ")
	case *errdetails.ResourceInfo:
		return fmt.Sprintf("resource %s %s: %s", d.GetResourceType(), d.GetResourceName(), d.GetDescription())
	case *errdetails.Help:
		var out []string
		for _, l := range d.GetLinks() {
			out = append(out, fmt.Sprintf("%s <%s>", l.GetDescription(), l.GetUrl()))
		}
		return strings.Join(out, ", ")
	case *errdetails.LocalizedMessage:
		return d.GetMessage()
	case proto.Message:
		b, err := protojson.Marshal(d)
		if err != nil {
			return ""
		}
		return string(b)
	case error:
		return d.Error()
	}
	return ""
}
