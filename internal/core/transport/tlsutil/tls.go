// Package tlsutil 生成 P2P 自签名 TLS 配置
//
// 节点之间不依赖 PKI：每个传输启动时生成一张一次性的
// ed25519 自签名证书，对端只验证证书可解析且在有效期内。
// 节点身份由版本握手认证，不由证书认证。
package tlsutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// certValidity 自签名证书有效期
const certValidity = 180 * 24 * time.Hour

// NewServerConfig 生成带一次性自签名证书的服务端配置
func NewServerConfig(nextProtos ...string) (*tls.Config, error) {
	cert, err := generateCertificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   nextProtos,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// NewClientConfig 生成接受任意自签名对端的客户端配置
//
// InsecureSkipVerify 关闭标准 CA 验证（自签名证书没有 CA 链），
// 验证交给 verifyPeerCertificate：可解析且在有效期内即接受。
func NewClientConfig(nextProtos ...string) *tls.Config {
	return &tls.Config{
		NextProtos:            nextProtos,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyPeerCertificate,
		MinVersion:            tls.VersionTLS13,
	}
}

// generateCertificate 生成一次性 ed25519 自签名证书
func generateCertificate() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("生成密钥失败: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"umbra"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("创建证书失败: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
	}, nil
}

// verifyPeerCertificate 验证对端证书可解析且在有效期内
func verifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("对端未提供证书")
	}

	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("解析证书失败: %w", err)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("证书尚未生效: NotBefore=%v", cert.NotBefore)
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("证书已过期: NotAfter=%v", cert.NotAfter)
	}

	return nil
}
