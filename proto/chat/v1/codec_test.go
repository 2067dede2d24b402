package v1

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestCodecRegistered(t *testing.T) {
	if encoding.GetCodecV2(CodecName) == nil {
		t.Fatal("json codec not registered")
	}
}

func TestCodecKeepsEmptyTextAndTime(t *testing.T) {
	c := jsonCodec{}
	sent := time.Unix(200, 5).UTC()
	b, err := c.Marshal(&Message{Id: "m1", Text: "", SentAt: timestamppb.New(sent)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var got Message
	if err := c.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.GetId() != "m1" || got.GetText() != "" || !got.GetSentAt().AsTime().Equal(sent) {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestNilGetters(t *testing.T) {
	var r *RegisterRequest
	if r.GetEmail() != "" || r.GetAvatarJpeg() != nil {
		t.Fatal("nil getters should return zero values")
	}
}

func TestServiceDescMatchesProto(t *testing.T) {
	src, err := os.ReadFile("chat.proto")
	if err != nil {
		t.Fatalf("reading chat.proto: %v", err)
	}
	rpc := regexp.MustCompile(`rpc (\w+)\(\w+\) returns \((stream )?\w+\)`)

	var unary, streams []string
	for _, m := range rpc.FindAllStringSubmatch(string(src), -1) {
		if m[2] != "" {
			streams = append(streams, m[1])
		} else {
			unary = append(unary, m[1])
		}
	}

	var descUnary, descStreams []string
	for _, m := range ChatService_ServiceDesc.Methods {
		descUnary = append(descUnary, m.MethodName)
	}
	for _, s := range ChatService_ServiceDesc.Streams {
		descStreams = append(descStreams, s.StreamName)
	}

	for _, pair := range [][2][]string{{unary, descUnary}, {streams, descStreams}} {
		want, got := pair[0], pair[1]
		sort.Strings(want)
		sort.Strings(got)
		if strings.Join(want, ",") != strings.Join(got, ",") {
			t.Fatalf("chat.proto declares %v, descriptor has %v", want, got)
		}
	}
	if ChatService_ServiceDesc.ServiceName != "chat.v1.ChatService" || !strings.Contains(string(src), "package chat.v1;") {
		t.Fatalf("service name out of step with chat.proto: %s", ChatService_ServiceDesc.ServiceName)
	}
}
