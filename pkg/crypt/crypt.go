package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

func NewKey(s string) Key {
	hash := sha256.Sum256([]byte(s))
	return key(hash[:])
}

type Key interface {
	Encrypt(plaintext []byte) (ciphertext []byte, err error)
	Decrypt(ciphertext []byte) (plaintext []byte, err error)
	EncryptToWriter(plaintext []byte, writer io.Writer) (err error)
	DecryptFromReader(reader io.Reader) (plaintext []byte, err error)
}

type key []byte

func (k key) EncryptToWriter(plaintext []byte, writer io.Writer) (err error) {
	ciphertext, err := k.Encrypt(plaintext)
	if err != nil {
		return err
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(len(ciphertext)))

	_, err = writer.Write(append(b, ciphertext...))
	return err
}

func (k key) DecryptFromReader(reader io.Reader) (plaintext []byte, err error) {
	b := make([]byte, 8)
	if _, err = io.ReadFull(reader, b); err != nil {
		return nil, err
	}
	ciphertext := make([]byte, binary.LittleEndian.Uint64(b))
	if _, err = io.ReadFull(reader, ciphertext); err != nil {
		return nil, err
	}
	return k.Decrypt(ciphertext)
}

func (k key) Encrypt(plaintext []byte) (ciphertext []byte, err error) {
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, err
	}

	// GCM mode provides authenticated encryption
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	// Seal appends the encrypted data to the nonce
	ciphertext = aesGCM.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

func (k key) Decrypt(ciphertext []byte) (plaintext []byte, err error) {
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return aesGCM.Open(nil, nonce, ciphertext, nil)
}
