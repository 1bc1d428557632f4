package epost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/sellerbay/parcelgate/config"
)

func testCreds() config.Credentials {
	return config.Credentials{
		APIKey:     "api-key-1",
		CipherKey:  "contract-key",
		CustomerNo: "CUST001",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, testCreds())
	require.NoError(t, err)
	return c, srv
}

func TestCall_EncryptedRequestShape(t *testing.T) {
	var got url.Values
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`<xml><result>Y</result></xml>`))
	})

	f := NewFields().Add("custNo", "CUST001").Add("orderNo", "ORD-1")
	_, err := c.Call(context.Background(), endpointRegister, f, true, "Y")
	require.NoError(t, err)

	require.Equal(t, "api-key-1", got.Get("key"))
	require.Equal(t, "Y", got.Get("testYn"))
	require.Empty(t, got.Get("custNo"))

	// The blob must decrypt back to the serialized field list.
	codec, err := NewCodec("contract-key")
	require.NoError(t, err)
	plain, err := codec.Decode(got.Get("regData"))
	require.NoError(t, err)
	require.Equal(t, "custNo=CUST001&orderNo=ORD-1", plain)
}

func TestCall_PlainRequestShape(t *testing.T) {
	var got url.Values
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`<xml><treatStusCd>03</treatStusCd></xml>`))
	})

	f := NewFields().Add("custNo", "CUST001").Add("regDate", "20260831")
	_, err := c.Call(context.Background(), endpointStatus, f, false, "N")
	require.NoError(t, err)

	require.Equal(t, "CUST001", got.Get("custNo"))
	require.Equal(t, "20260831", got.Get("regDate"))
	require.Empty(t, got.Get("regData"))
	// Anything but exactly "Y" keeps the flag off the wire.
	require.False(t, got.Has("testYn"))
}

func TestCall_ValidationShortCircuitsBeforeTransport(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	f := NewFields().AddFlag("insuredYn", "X")
	_, err := c.Call(context.Background(), endpointRegister, f, true, "")
	var invalid *InvalidParamsError
	require.True(t, errors.As(err, &invalid))
	require.False(t, called)
}

func TestCall_HTTPError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream broke"))
	})

	_, err := c.Call(context.Background(), endpointStatus, NewFields(), false, "")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusBadGateway, httpErr.Status)
}

func TestCall_TimeoutError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, endpointStatus, NewFields(), false, "")
	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	require.Equal(t, endpointStatus, timeout.Endpoint)
}

func TestCall_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	c, err := New(srv.URL, testCreds())
	require.NoError(t, err)

	_, err = c.Call(context.Background(), endpointStatus, NewFields(), false, "")
	var network *NetworkError
	require.True(t, errors.As(err, &network))
}

func TestCall_CarrierErrorBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<xml><error_code>ERR-101</error_code><error_message>bad zip</error_message></xml>`))
	})

	_, err := c.Call(context.Background(), endpointRegister, NewFields(), true, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "ERR-101", apiErr.Code)
	require.Equal(t, "bad zip", apiErr.Message)
}

func TestClassifyError_Dialects(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "lowercase tags",
			body:     `<xml><error_code>ERR-101</error_code><error_message>m1</error_message></xml>`,
			wantCode: "ERR-101",
			wantMsg:  "m1",
		},
		{
			name:     "uppercase tags",
			body:     `<xml><ERROR_CODE>ERR-102</ERROR_CODE><ERROR_MESSAGE>m2</ERROR_MESSAGE></xml>`,
			wantCode: "ERR-102",
			wantMsg:  "m2",
		},
		{
			name:     "camelCase tags",
			body:     `<xml><errCode>ERR-103</errCode><errMsg>m3</errMsg></xml>`,
			wantCode: "ERR-103",
			wantMsg:  "m3",
		},
		{
			name:     "result sentinel",
			body:     `<xml><result>N</result><code>ERR-104</code><message>m4</message></xml>`,
			wantCode: "ERR-104",
			wantMsg:  "m4",
		},
		{
			name:     "success sentinel without code",
			body:     `<xml><success>N</success><msg>m5</msg></xml>`,
			wantCode: "UNKNOWN",
			wantMsg:  "m5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyError(tt.body)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tt.wantCode, apiErr.Code)
			require.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestClassifyError_LowercaseWinsOverSentinel(t *testing.T) {
	body := `<xml><result>N</result><error_code>ERR-101</error_code></xml>`
	err := ClassifyError(body)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "ERR-101", apiErr.Code)
}

func TestClassifyError_SuccessBodiesPass(t *testing.T) {
	require.NoError(t, ClassifyError(`<xml><result>Y</result><regiNo>691</regiNo></xml>`))
	require.NoError(t, ClassifyError(`<xml><treatStusCd>03</treatStusCd></xml>`))
}

func TestClassifyError_InvalidCustomerNo(t *testing.T) {
	body := `<xml><error_code><![CDATA[ERR-211]]></error_code><error_message><![CDATA[invalid customer]]></error_message></xml>`
	err := ClassifyError(body)

	var custErr *InvalidCustomerNoError
	require.True(t, errors.As(err, &custErr))

	// The wrapped APIError stays reachable for generic handling.
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, CodeInvalidCustomerNo, apiErr.Code)
}

func TestRegister_ParsesResult(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<xml>
			<reqNo>R-1</reqNo>
			<resNo><![CDATA[A-2]]></resNo>
			<regiNo>6912345678901</regiNo>
			<regiPoNm><![CDATA[서울중앙우체국]]></regiPoNm>
			<resDate>20260831</resDate>
			<price>4000</price>
			<vTelNo>050-1234</vTelNo>
		</xml>`))
	})

	res, err := c.Register(context.Background(), RegisterRequest{
		CustomerNo: "CUST001",
		OrderNo:    "ORD-1",
		ReqType:    "1",
		PayType:    "1",
		SenderName: "홍길동",
		RecvName:   "김철수",
		GoodsName:  "의류",
		Weight:     2,
		Volume:     60,
		InsuredYn:  "N",
	})
	require.NoError(t, err)
	require.Equal(t, "R-1", res.ReqNo)
	require.Equal(t, "A-2", res.ResNo)
	require.Equal(t, "6912345678901", res.RegiNo)
	require.Equal(t, "서울중앙우체국", res.RegiPoNm)
	require.Equal(t, "20260831", res.ResDate)
	require.Equal(t, 4000, res.Price)
	require.Equal(t, "050-1234", res.VTelNo)
}

func TestRegister_InsuredAmountOnlyWhenInsured(t *testing.T) {
	var got string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		codec, _ := NewCodec("contract-key")
		got, _ = codec.Decode(r.URL.Query().Get("regData"))
		_, _ = w.Write([]byte(`<xml><regiNo>691</regiNo></xml>`))
	})

	req := RegisterRequest{
		CustomerNo: "CUST001", OrderNo: "ORD-1", ReqType: "1", PayType: "1",
		GoodsName: "전자제품", Weight: 2, Volume: 60,
		InsuredYn: "Y", InsuredAmount: 500000,
	}
	_, err := c.Register(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, got, "insuredYn=Y")
	require.Contains(t, got, "insuredAmt=500000")

	req.InsuredYn = "N"
	req.InsuredAmount = 0
	_, err = c.Register(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, got, "insuredYn=N")
	require.NotContains(t, got, "insuredAmt")
}

func TestTreatStatus_StageAndNoData(t *testing.T) {
	body := `<xml><treatStusCd>02</treatStusCd></xml>`
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})

	req := StatusRequest{CustomerNo: "CUST001", ReqType: "1", OrderNo: "ORD-1", RegDate: "20260831"}
	stage, err := c.TreatStatus(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StageCollected, stage)

	// No stage tag: the carrier has nothing yet, which is not an error.
	body = `<xml></xml>`
	stage, err = c.TreatStatus(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, stage)
}

func TestCancelRegistration_ReplaysBookingFlags(t *testing.T) {
	var got string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		codec, _ := NewCodec("contract-key")
		got, _ = codec.Decode(r.URL.Query().Get("regData"))
		_, _ = w.Write([]byte(`<xml><result>Y</result></xml>`))
	})

	err := c.CancelRegistration(context.Background(), CancelRequest{
		CustomerNo: "CUST001",
		ReqNo:      "R-1",
		ResNo:      "A-2",
		RegiNo:     "6912345678901",
		ReqType:    "2",
		PayType:    "3",
	})
	require.NoError(t, err)
	require.Equal(t, "custNo=CUST001&reqNo=R-1&resNo=A-2&regiNo=6912345678901&reqType=2&payType=3", got)
}
