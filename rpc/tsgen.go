package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RenderTypeScript emits a TypeScript module describing endpoints: the
// envelope shapes, the endpoint metadata array and a method union.
func RenderTypeScript(endpoints []Endpoint, exportName string) ([]byte, error) {
	if strings.TrimSpace(exportName) == "" {
		exportName = "shipmentEndpoints"
	}
	endpoints = append(make([]Endpoint, 0, len(endpoints)), endpoints...)
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].Method < endpoints[j].Method
	})

	metaJSON, err := json.MarshalIndent(endpoints, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal endpoint metadata: %w", err)
	}

	methodUnion := "never"
	if len(endpoints) > 0 {
		quoted := make([]string, 0, len(endpoints))
		for _, ep := range endpoints {
			quoted = append(quoted, quote(ep.Method))
		}
		methodUnion = strings.Join(quoted, " | ")
	}

	var out bytes.Buffer
	out.WriteString("// Code generated by shipctl contract. DO NOT EDIT.\n\n")
	out.WriteString(`export interface RPCTypeRef {
  goType: string;
  pkgPath?: string;
  name?: string;
  kind?: string;
  pointer?: boolean;
}

export interface RPCEndpointMeta {
  method: string;
  messageType: string;
  handlerKind: "execute" | "query";
  requestType?: RPCTypeRef;
  responseType?: RPCTypeRef;
  timeout: number;
  idempotent: boolean;
  summary?: string;
  tags?: string[];
}

export interface RPCRequestMeta {
  actorId?: string;
  requestId?: string;
  correlationId?: string;
  headers?: Record<string, string>;
}

export interface RPCRequestEnvelope<TData = unknown> {
  data: TData;
  meta?: RPCRequestMeta;
}

export interface RPCError {
  code: string;
  message: string;
  category?: string;
  details?: Record<string, unknown>;
}

export interface RPCResponseEnvelope<TData = unknown> {
  data?: TData;
  error?: RPCError;
}

`)
	fmt.Fprintf(&out, "export const %s: RPCEndpointMeta[] = ", exportName)
	out.Write(metaJSON)
	out.WriteString(";\n\n")
	fmt.Fprintf(&out, "export type RPCMethod = %s;\n\n", methodUnion)

	out.WriteString("export const rpcMessageTypes: Record<RPCMethod, string> = {\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&out, "  %s: %s,\n", quote(ep.Method), quote(ep.MessageType))
	}
	out.WriteString("};\n")
	return out.Bytes(), nil
}

func quote(value string) string {
	encoded, _ := json.Marshal(value)
	return string(encoded)
}
